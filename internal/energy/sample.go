package energy

import (
	"encoding/hex"
	"math"
	"strconv"
	"time"

	"lukechampine.com/blake3"
)

// Sample is one published snapshot of the sampler's state.
type Sample struct {
	TS       float64 `json:"ts"` // unix seconds, millisecond resolution
	GPUW     float64 `json:"gpu_w"`
	CPUW     float64 `json:"cpu_w"`
	IdleGPUW float64 `json:"idle_gpu_w"`
	IdleCPUW float64 `json:"idle_cpu_w"`
	NetW     float64 `json:"net_w"`
	BucketJ  float64 `json:"bucket_j"`
}

// Hash returns the hex BLAKE3 digest of "<ts>:<bucket_j>", with both numbers
// in their shortest decimal form. It lets a consumer detect a snapshot that
// was altered after it was read.
func (s Sample) Hash() string {
	sum := blake3.Sum256([]byte(formatFloat(s.TS) + ":" + formatFloat(s.BucketJ)))
	return hex.EncodeToString(sum[:])
}

// Time returns TS as a time.Time.
func (s Sample) Time() time.Time {
	return time.UnixMilli(int64(math.Round(s.TS * 1000)))
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixMilli()) / 1000
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
