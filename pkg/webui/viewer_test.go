package webui

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ghostwriter/pkg/logx"
	"ghostwriter/pkg/proto"
)

func TestViewerSendAfterCloseErrors(t *testing.T) {
	v := newWSViewer(nil, logx.NewLogger("webui-test"))

	require.NoError(t, v.Send(proto.ResponseMsg("hello")))

	v.close()
	err := v.Send(proto.ResponseMsg("too late"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closed")

	// Repeated teardown is a no-op.
	v.close()
}

// Send races close when the session broadcasts from one viewer's read pump
// while another viewer tears down. Neither side may panic.
func TestViewerConcurrentSendAndClose(t *testing.T) {
	for i := 0; i < 50; i++ {
		v := newWSViewer(nil, logx.NewLogger("webui-test"))

		var wg sync.WaitGroup
		for g := 0; g < 4; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 100; j++ {
					_ = v.Send(proto.DraftChunkMsg("word ", false))
				}
			}()
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			v.close()
		}()
		wg.Wait()
	}
}
