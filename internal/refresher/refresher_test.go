package refresher

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kestrel-oss/credrelay/internal/credential"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefreshIfNeededSkipsWhenNotDue(t *testing.T) {
	r := New(time.Minute)
	var calls int32
	r.Register("social", func(ctx context.Context, cred *credential.Credential) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	cred := &credential.Credential{ID: "c1", Type: "oauth", AuthMethod: "social", ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, r.RefreshIfNeeded(context.Background(), cred))
	assert.Equal(t, int32(0), calls)
}

func TestRefreshIfNeededCoalescesConcurrentCallers(t *testing.T) {
	r := New(time.Minute)
	var calls int32
	release := make(chan struct{})
	r.Register("social", func(ctx context.Context, cred *credential.Credential) error {
		atomic.AddInt32(&calls, 1)
		<-release
		cred.ExpiresAt = time.Now().Add(time.Hour)
		return nil
	})
	cred := &credential.Credential{ID: "c2", Type: "oauth", AuthMethod: "social", ExpiresAt: time.Now().Add(-time.Minute)}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = r.RefreshIfNeeded(context.Background(), cred)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls)
}

func TestRefreshIfNeededUnknownAuthMethod(t *testing.T) {
	r := New(time.Minute)
	cred := &credential.Credential{ID: "c3", Type: "oauth", AuthMethod: "mystery", ExpiresAt: time.Now().Add(-time.Minute)}
	err := r.RefreshIfNeeded(context.Background(), cred)
	assert.Error(t, err)
}
