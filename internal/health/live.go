package health

import (
	"context"

	"github.com/steveyegge/atlas/internal/drift"
	"github.com/steveyegge/atlas/internal/schema"
)

// Live scores modules against the working tree as it is now. A stored
// summary only knows the drift seen by the build that wrote it.
func Live(ctx context.Context, d *drift.Detector, modules map[string]*schema.ModuleIndex, alerts []schema.Alert) (schema.HealthScore, *drift.Report, error) {
	report, err := d.Check(ctx, modules)
	if err != nil {
		return schema.HealthScore{}, nil, err
	}
	return Assess(modules, report.Count(), alerts), report, nil
}
