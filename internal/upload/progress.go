package upload

import (
	"io"
	"math"
)

// Progress is reported while a file's bytes are transferred.
type Progress struct {
	Loaded     int64
	Total      int64
	Percentage int
}

type ProgressFunc func(Progress)

// Percent is round(loaded/total*100) clamped to [0,100]. An empty file is complete.
func Percent(loaded, total int64) int {
	if total <= 0 {
		return 100
	}
	p := int(math.Round(float64(loaded) / float64(total) * 100))
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// progressReader reports every successful read. Reads happen on whatever goroutine the
// Transferer uses, but never concurrently, so no locking is needed.
type progressReader struct {
	r        io.Reader
	total    int64
	loaded   int64
	lastPct  int
	reported bool
	report   ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.loaded += int64(n)
		p.emit(Percent(p.loaded, p.total))
	}
	return n, err
}

// finish guarantees a closing 100% event.
func (p *progressReader) finish() {
	if !p.reported || p.lastPct < 100 {
		loaded := p.loaded
		if loaded < p.total {
			loaded = p.total
		}
		p.loaded = loaded
		p.emit(100)
	}
}

func (p *progressReader) emit(pct int) {
	if pct < p.lastPct {
		pct = p.lastPct
	}
	p.lastPct = pct
	p.reported = true
	if p.report != nil {
		p.report(Progress{Loaded: p.loaded, Total: p.total, Percentage: pct})
	}
}
