package dispatch

import (
	"fmt"
	"testing"

	"blast/internal/domain"
)

func testAccounts(n int) []domain.SenderAccount {
	accounts := make([]domain.SenderAccount, n)
	for i := range accounts {
		accounts[i] = domain.SenderAccount{
			ID:          fmt.Sprintf("acct-%d", i),
			Kind:        domain.TransportRelay,
			SenderEmail: fmt.Sprintf("sender%d@example.com", i),
		}
	}
	return accounts
}

func TestRouteModulo(t *testing.T) {
	for _, n := range []int{1, 2, 3, 7} {
		accounts := testAccounts(n)
		for idx := 0; idx < 100; idx++ {
			got := Route(idx, accounts)
			want := accounts[idx%n]
			if got.ID != want.ID {
				t.Fatalf("n=%d idx=%d: got %s want %s", n, idx, got.ID, want.ID)
			}
		}
	}
}

func TestRouteDeterministic(t *testing.T) {
	accounts := testAccounts(3)
	for idx := 0; idx < 30; idx++ {
		a := Route(idx, accounts)
		b := Route(idx, accounts)
		if a.ID != b.ID {
			t.Fatalf("idx=%d: routing not reproducible: %s vs %s", idx, a.ID, b.ID)
		}
	}
}

// Rotation depends only on the global index, so slicing the campaign across
// invocations must not change any recipient's assigned account.
func TestRouteSliceIndependent(t *testing.T) {
	accounts := testAccounts(3)

	whole := make(map[int]string)
	for idx := 0; idx < 60; idx++ {
		whole[idx] = Route(idx, accounts).ID
	}

	for _, sliceSize := range []int{1, 7, 10, 25} {
		for start := 0; start < 60; start += sliceSize {
			end := start + sliceSize
			if end > 60 {
				end = 60
			}
			for idx := start; idx < end; idx++ {
				if got := Route(idx, accounts).ID; got != whole[idx] {
					t.Fatalf("sliceSize=%d idx=%d: got %s want %s", sliceSize, idx, got, whole[idx])
				}
			}
		}
	}
}
