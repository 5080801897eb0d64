package object

import "io"

// Progress is a single upload progress observation.
type Progress struct {
	BytesSent int64
	Total     int64
	Percent   int
}

// ProgressReader counts bytes read and publishes whole-percent changes to a channel.
// Sends never block: if the observer is slow, intermediate events are dropped.
type ProgressReader struct {
	r     io.Reader
	total int64
	n     int64
	last  int
	ch    chan<- Progress
}

// NewProgressReader wraps r. total <= 0 means unknown, in which case only the
// final 100% event is published.
func NewProgressReader(r io.Reader, total int64, ch chan<- Progress) *ProgressReader {
	return &ProgressReader{r: r, total: total, last: -1, ch: ch}
}

func (p *ProgressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.n += int64(n)
	if p.total > 0 && n > 0 {
		pct := int(p.n * 100 / p.total)
		if pct > 100 {
			pct = 100
		}
		if pct != p.last && pct < 100 {
			p.publish(pct)
		}
	}
	if err == io.EOF && p.last != 100 {
		p.publish(100)
	}
	return n, err
}

// BytesRead returns the number of bytes consumed so far.
func (p *ProgressReader) BytesRead() int64 {
	return p.n
}

func (p *ProgressReader) publish(pct int) {
	p.last = pct
	if p.ch == nil {
		return
	}
	select {
	case p.ch <- Progress{BytesSent: p.n, Total: p.total, Percent: pct}:
	default:
	}
}
