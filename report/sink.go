package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/warp/canteen-ledger/settlement"
)

// FileSink writes the settlement report set into Dir, once per renderer.
// It implements settlement.ReportSink.
type FileSink struct {
	Dir       string
	Renderers []Renderer
}

func NewFileSink(dir string, renderers ...Renderer) *FileSink {
	if len(renderers) == 0 {
		renderers = []Renderer{CSVRenderer{}}
	}
	return &FileSink{Dir: dir, Renderers: renderers}
}

// WriteSettlementReports renders every table in every format. Files are
// named by table, settlement time and record id, and an existing file is
// never overwritten. Any failure is returned so the settlement is aborted
// before the ledger changes.
func (s *FileSink) WriteSettlementReports(ctx context.Context, req settlement.Request) ([]settlement.Artifact, error) {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}
	stamp := req.At.Format("2006-01-02-150405")
	if req.ID != "" {
		stamp += "-" + shortID(req.ID)
	}

	var artifacts []settlement.Artifact
	for _, t := range SettlementTables(req.Snapshot, req.Disposition, req.At) {
		for _, r := range s.Renderers {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			path := filepath.Join(s.Dir, fmt.Sprintf("%s-%s.%s", t.Name, stamp, r.Format()))
			if err := writeFile(path, r, t); err != nil {
				return nil, fmt.Errorf("write %s: %w", filepath.Base(path), err)
			}
			artifacts = append(artifacts, settlement.Artifact{
				Name:   t.Name,
				Format: r.Format(),
				Path:   path,
				Rows:   len(t.Rows),
			})
		}
	}
	return artifacts, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func writeFile(path string, r Renderer, t Table) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if err := r.Render(f, t); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
