package api

import (
	"context"

	"github.com/fulldump/box"
)

func dropDatastore(ctx context.Context) error {
	name := box.GetUrlParameter(ctx, "datastoreName")
	return notFound(name, GetServicer(ctx).DropDatastore(name))
}
