package task

import (
	"context"

	dpEsClient "github.com/ONSdigital/dp-elasticsearch/v3/client"
	"github.com/ONSdigital/log.go/v2/log"
	"github.com/pkg/errors"

	"github.com/ONSdigital/dp-search-index-migration/config"
)

// indexAdmin performs index administration against the target cluster
type indexAdmin struct {
	client dpEsClient.Client
}

// createDestIndices creates each destination index up front so the reindex
// never relies on auto-created mappings
func (a *indexAdmin) createDestIndices(ctx context.Context, migrations []config.Migration, settings []byte) error {
	for _, m := range migrations {
		log.Info(ctx, "creating destination index", log.Data{"index": m.Dest})
		if err := a.client.CreateIndex(ctx, m.Dest, settings); err != nil {
			return errors.Wrap(err, "failed to create destination index "+m.Dest)
		}
	}
	return nil
}

// swapAlias points the alias at the migrated indices, removing it from any
// index whose name it prefixes
func (a *indexAdmin) swapAlias(ctx context.Context, alias string, indices []string) error {
	if err := a.client.UpdateAliases(ctx, alias, []string{alias + "*"}, indices); err != nil {
		return errors.Wrap(err, "failed to update aliases")
	}
	log.Info(ctx, "swapped alias", log.Data{"alias": alias, "indices": indices})
	return nil
}

// deleteFailedIndices removes destination indices left behind by failed
// migrations. Timed-out destinations are left alone, their reindex task may
// still be running on the target cluster.
func (a *indexAdmin) deleteFailedIndices(ctx context.Context, report *MigrationReport) error {
	var toDelete []string
	for i := range report.Results {
		if report.Results[i].Outcome == OutcomeFailed {
			toDelete = append(toDelete, report.Results[i].Migration.Dest)
		}
	}
	if len(toDelete) == 0 {
		return nil
	}

	if err := a.client.DeleteIndices(ctx, toDelete); err != nil {
		return errors.Wrap(err, "failed to delete destination indices")
	}
	log.Info(ctx, "deleted destination indices of failed migrations", log.Data{"indices": toDelete})
	return nil
}
