package async

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAsyncOperationResolution(t *testing.T) {
	var op = NewAsyncOperation()

	select {
	case <-op.Done():
		t.Fatal("unexpected resolution")
	default:
	}

	go func() {
		time.Sleep(time.Millisecond)
		op.Resolve(errors.New("whoops"))
	}()
	assert.EqualError(t, op.Err(), "whoops")

	var _ OpFuture = op
	assert.NoError(t, FinishedOperation(nil).Err())
}

func TestPromise(t *testing.T) {
	var p = make(Promise)
	assert.False(t, p.Resolved())
	p.Resolve()
	assert.True(t, p.Resolved())
}
