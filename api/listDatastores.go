package api

import (
	"context"

	"github.com/fulldump/rowmodel/service"
)

func listDatastores(ctx context.Context) []*service.Summary {
	return GetServicer(ctx).ListDatastores()
}
