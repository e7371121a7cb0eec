package tenancy

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestCurrent_OutsideRun(t *testing.T) {
	_, ok := Current(context.Background())
	assert.False(t, ok)
	assert.Nil(t, CurrentTenantID(context.Background()))

	_, err := Require(context.Background())
	assert.ErrorIs(t, err, ErrMissingTenantContext)
}

func TestRun_SetsTenantForChain(t *testing.T) {
	tenantID := uuid.New()

	err := Run(context.Background(), tenantID, func(ctx context.Context) error {
		got, err := Require(ctx)
		require.NoError(t, err)
		assert.Equal(t, tenantID, got)

		// goroutines started with the chain's context see the same tenant
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, &tenantID, CurrentTenantID(ctx))
		}()
		wg.Wait()
		return nil
	})
	require.NoError(t, err)
}

func TestRun_RejectsNilTenant(t *testing.T) {
	called := false
	err := Run(context.Background(), uuid.Nil, func(ctx context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrMissingTenantContext)
	assert.False(t, called)
}

func TestRun_Nesting(t *testing.T) {
	outer, other := uuid.New(), uuid.New()

	err := Run(context.Background(), outer, func(ctx context.Context) error {
		t.Run("same tenant re-enters", func(t *testing.T) {
			err := Run(ctx, outer, func(inner context.Context) error {
				got, _ := Current(inner)
				assert.Equal(t, outer, got)
				return nil
			})
			assert.NoError(t, err)
		})

		t.Run("different tenant is a conflict", func(t *testing.T) {
			called := false
			err := Run(ctx, other, func(context.Context) error {
				called = true
				return nil
			})
			require.ErrorIs(t, err, ErrTenantScopeConflict)
			assert.False(t, called)

			var conflict *ScopeConflictError
			require.True(t, errors.As(err, &conflict))
			assert.Equal(t, outer, conflict.Active)
			assert.Equal(t, other, conflict.Requested)
		})

		got, _ := Current(ctx)
		assert.Equal(t, outer, got, "outer scope unaffected by nested calls")
		return nil
	})
	require.NoError(t, err)
}

func TestRunCrossTenant(t *testing.T) {
	outer, other := uuid.New(), uuid.New()

	err := Run(context.Background(), outer, func(ctx context.Context) error {
		var seen uuid.UUID
		err := RunCrossTenant(ctx, other, func(inner context.Context) error {
			seen, _ = Current(inner)
			// Run inside the cross-tenant scope follows the nested tenant
			return Run(inner, other, func(context.Context) error { return nil })
		})
		require.NoError(t, err)
		assert.Equal(t, other, seen)

		got, _ := Current(ctx)
		assert.Equal(t, outer, got)
		return nil
	})
	require.NoError(t, err)

	err = RunCrossTenant(context.Background(), uuid.Nil, func(context.Context) error {
		t.Fatal("fn must not run without a tenant")
		return nil
	})
	assert.ErrorIs(t, err, ErrMissingTenantContext)
}

func TestRun_ReturnsOperationError(t *testing.T) {
	errBoom := errors.New("boom")
	err := Run(context.Background(), uuid.New(), func(context.Context) error { return errBoom })
	assert.ErrorIs(t, err, errBoom)
}

// Many chains interleave at every yield point; none may observe another's tenant.
func TestRun_ConcurrentChainsIsolated(t *testing.T) {
	const chains = 64
	const steps = 50

	start := make(chan struct{})
	g, gctx := errgroup.WithContext(context.Background())
	for i := 0; i < chains; i++ {
		tenantID := uuid.New()
		g.Go(func() error {
			<-start
			return Run(gctx, tenantID, func(ctx context.Context) error {
				for s := 0; s < steps; s++ {
					got, err := Require(ctx)
					if err != nil {
						return err
					}
					if got != tenantID {
						return errors.New("observed another chain's tenant")
					}
					// hop through a nested goroutine to mimic an async suspension
					done := make(chan uuid.UUID)
					go func() {
						id, _ := Current(ctx)
						done <- id
					}()
					if <-done != tenantID {
						return errors.New("tenant lost across goroutine hop")
					}
				}
				return nil
			})
		})
	}
	close(start)
	require.NoError(t, g.Wait())
}

func TestErrorPredicates(t *testing.T) {
	assert.True(t, IsMissingTenant(ErrMissingTenantContext))
	assert.True(t, IsInvalidTenant(errors.Join(errors.New("x"), ErrInvalidTenant)))
	assert.False(t, IsInvalidTenant(ErrMissingTenantContext))
}
