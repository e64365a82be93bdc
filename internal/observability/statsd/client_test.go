package statsd

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listen(t *testing.T) net.PacketConn {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = pc.Close() })
	return pc
}

func readLine(t *testing.T, pc net.PacketConn) string {
	t.Helper()
	require.NoError(t, pc.SetReadDeadline(time.Now().Add(5*time.Second)))
	buf := make([]byte, 1024)
	n, _, err := pc.ReadFrom(buf)
	require.NoError(t, err)
	return string(buf[:n])
}

func TestClientWritesLines(t *testing.T) {
	t.Parallel()
	pc := listen(t)

	client, err := NewClient(Config{
		Enabled:    true,
		Address:    pc.LocalAddr().String(),
		Prefix:     " .enricher. ",
		GlobalTags: map[string]string{"env": "test"},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	require.True(t, client.Enabled())

	client.Count("stage.transition", 2, map[string]string{"stage": "links", "env": " prod "})
	assert.Equal(t, "enricher.stage.transition:2|c|#env:prod,stage:links", readLine(t, pc))

	client.Gauge("backlog", 12.5, nil)
	assert.Equal(t, "enricher.backlog:12.5|g|#env:test", readLine(t, pc))

	client.Timing("stage duration", 1500*time.Microsecond, nil)
	assert.Equal(t, "enricher.stage_duration:1.5|ms|#env:test", readLine(t, pc))
}

func TestClientCloseDropsMetrics(t *testing.T) {
	t.Parallel()
	pc := listen(t)

	client, err := NewClient(Config{Enabled: true, Address: pc.LocalAddr().String()})
	require.NoError(t, err)
	require.NoError(t, client.Close())
	require.NoError(t, client.Close())
	assert.False(t, client.Enabled())
	client.Count("dropped", 1, nil)

	var nilClient *Client
	assert.False(t, nilClient.Enabled())
	assert.NoError(t, nilClient.Close())
	nilClient.Count("ignored", 1, nil)
}

func TestNewClientDisabled(t *testing.T) {
	t.Parallel()

	client, err := NewClient(Config{Enabled: true, Address: "   "})
	require.NoError(t, err)
	assert.False(t, client.Enabled())

	client, err = NewClient(Config{Address: "127.0.0.1:8125"})
	require.NoError(t, err)
	assert.False(t, client.Enabled())
}

func TestNewClientDialError(t *testing.T) {
	t.Parallel()

	_, err := NewClient(Config{Enabled: true, Address: "bad address"})
	require.ErrorContains(t, err, "statsd dial")
}

func TestNormalizeMetricName(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		" reaper/cleanup ": "reaper_cleanup",
		"stage..duration":  "stage.duration",
		"a:b|c":            "a_b_c",
		"..":               "",
	}
	for input, want := range tests {
		assert.Equal(t, want, normalizeMetricName(input), input)
	}
}

func TestFormatTags(t *testing.T) {
	t.Parallel()

	global := map[string]string{"env": "prod", " service ": " enricher "}
	local := map[string]string{"result": " ok ", "": "ignored", "env": "stage"}

	assert.Equal(t, "|#env:stage,result:ok,service:enricher", formatTags(global, local))
	assert.Empty(t, formatTags(nil, nil))
}

type recordingSink struct {
	counts map[string]int64
}

func (r *recordingSink) Count(name string, v int64, _ map[string]string) { r.counts[name] += v }
func (r *recordingSink) Gauge(string, float64, map[string]string)        {}
func (r *recordingSink) Timing(string, time.Duration, map[string]string) {}

func TestMulti(t *testing.T) {
	t.Parallel()

	assert.Nil(t, Multi(nil, nil))

	a := &recordingSink{counts: map[string]int64{}}
	assert.Same(t, a, Multi(nil, a))

	b := &recordingSink{counts: map[string]int64{}}
	m := Multi(a, nil, b)
	m.Count("claims", 3, nil)
	m.Gauge("backlog", 1, nil)
	m.Timing("stage.duration", time.Second, nil)
	assert.EqualValues(t, 3, a.counts["claims"])
	assert.EqualValues(t, 3, b.counts["claims"])
}
