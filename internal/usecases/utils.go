package usecases

import (
	"sort"
	"strings"

	"yield-vault.backend/internal/domain/entities"
)

// chainNamespace returns the CAIP-2 namespace, e.g. "eip155" for "eip155:8453"
func chainNamespace(caip2 string) string {
	parts := strings.SplitN(caip2, ":", 2)
	if len(parts) == 2 {
		return parts[0]
	}
	return ""
}

func isEVMChain(chainID string) bool {
	return chainNamespace(chainID) == "eip155"
}

func validCAIP2(chainID string) bool {
	parts := strings.SplitN(chainID, ":", 2)
	return len(parts) == 2 && parts[0] != "" && parts[1] != ""
}

// byAPYAscending orders allocations so the cheapest yield is unwound first
func byAPYAscending(allocs []*entities.Allocation) {
	sort.SliceStable(allocs, func(i, j int) bool {
		if c := allocs[i].APY.Cmp(allocs[j].APY); c != 0 {
			return c < 0
		}
		return allocs[i].ID.String() < allocs[j].ID.String()
	})
}
