package health

import (
	"context"
	"errors"
	"fmt"

	"signalhouse/overture/pkg/experiment"
	"signalhouse/overture/pkg/policy"
)

// Probe names registered by the server wiring. Operators see these as keys
// in the readiness report.
const (
	ProbeLedger      = "ledger"
	ProbePolicy      = "policy"
	ProbeExperiments = "experiments"
)

// SeqReader is the slice of the ledger storage contract the ledger probe
// needs.
type SeqReader interface {
	LastSeq(ctx context.Context) (uint64, error)
}

// LedgerProbe pings the audit ledger with its cheapest query. Every
// decision ends in a ledger append, so a failing ledger means the instance
// cannot serve and must leave rotation.
func LedgerProbe(store SeqReader) CheckFunc {
	return func(ctx context.Context) error {
		if store == nil {
			return errors.New("ledger storage not configured")
		}
		if _, err := store.LastSeq(ctx); err != nil {
			return fmt.Errorf("ledger storage: %w", err)
		}
		return nil
	}
}

// PackProvider yields the currently loaded policy pack.
type PackProvider interface {
	Current() (*policy.Pack, error)
}

// PolicyProbe verifies a policy pack is loaded. Failed reloads keep the
// last good pack serving, so unhealthy here means the process never loaded
// one at all.
func PolicyProbe(packs PackProvider) CheckFunc {
	return func(ctx context.Context) error {
		if packs == nil {
			return errors.New("policy source not configured")
		}
		pack, err := packs.Current()
		if err != nil {
			return fmt.Errorf("policy pack: %w", err)
		}
		if pack == nil {
			return errors.New("no policy pack loaded")
		}
		return nil
	}
}

// ExperimentLister is the slice of the experiment store contract the
// experiments probe needs.
type ExperimentLister interface {
	ListExperiments(ctx context.Context) ([]*experiment.Experiment, error)
}

// ExperimentProbe pings the experiment store. Assignment degrades to no
// variant when the store is down, so this pulls the instance from rotation
// without having blocked any decisions in the meantime.
func ExperimentProbe(store ExperimentLister) CheckFunc {
	return func(ctx context.Context) error {
		if store == nil {
			return errors.New("experiment store not configured")
		}
		if _, err := store.ListExperiments(ctx); err != nil {
			return fmt.Errorf("experiment store: %w", err)
		}
		return nil
	}
}
