package ledger

import (
	"errors"
	"sync"
	"testing"

	"github.com/Klingon-tech/oyster/pkg/types"
)

// Concurrent lot purchases against a vault that can fill only one lot:
// exactly one succeeds and the rest see the vault short.
func TestBuyLot_ConcurrentVaultCheck(t *testing.T) {
	f := newFixture(t, 150)
	addr := f.sealed()

	const buyers = 8
	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		errs  = make([]error, buyers)
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			buyer := types.Address{0xC0, byte(i)}
			if i%2 == 0 {
				_, errs[i] = f.e.BuyLot(pay(buyer, lotPrice), addr)
			} else {
				_, errs[i] = f.e.BuyTokens(pay(buyer, lotPrice), addr, 100)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	var ok, short int
	for i, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrInsufficientVaultBalance):
			short++
		default:
			t.Errorf("buyer %d: unexpected error %v", i, err)
		}
	}
	if ok != 1 || short != buyers-1 {
		t.Fatalf("succeeded = %d, short = %d, want 1 and %d", ok, short, buyers-1)
	}
	if got := f.e.BalanceOf(f.vault); got != 50 {
		t.Errorf("vault balance = %d, want 50", got)
	}
	info, err := f.e.RightsInfo(addr)
	if err != nil {
		t.Fatalf("RightsInfo: %v", err)
	}
	if info.CurrencyBalance != lotPrice {
		t.Errorf("ledger currency = %d, want %d", info.CurrencyBalance, lotPrice)
	}
	f.checkInvariants()
}

// Views run alongside mutations without tearing: every read sees the
// vault and the ledger's token balance summing to the minted supply.
func TestViews_ConcurrentWithBuys(t *testing.T) {
	f := newFixture(t, 1000)
	addr := f.sealed()

	var wg sync.WaitGroup
	done := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			if err := f.e.CheckInvariants(); err != nil {
				t.Errorf("invariants during buys: %v", err)
				return
			}
			_ = f.e.BalanceOf(f.vault)
			if _, err := f.e.RightsInfo(addr); err != nil {
				t.Errorf("RightsInfo: %v", err)
				return
			}
		}
	}()

	var buys sync.WaitGroup
	for i := 0; i < 5; i++ {
		buys.Add(1)
		go func(i int) {
			defer buys.Done()
			if _, err := f.e.BuyLot(pay(types.Address{0xD0, byte(i)}, lotPrice), addr); err != nil {
				t.Errorf("buyer %d: %v", i, err)
			}
		}(i)
	}
	buys.Wait()
	close(done)
	wg.Wait()

	if got := f.e.BalanceOf(f.vault); got != 500 {
		t.Errorf("vault balance = %d, want 500", got)
	}
	f.checkInvariants()
}
