package api

import (
	"context"

	"github.com/fulldump/box"

	"github.com/fulldump/rowmodel/service"
)

func getDatastore(ctx context.Context) (*service.Summary, error) {

	name := box.GetUrlParameter(ctx, "datastoreName")

	summary, err := GetServicer(ctx).Describe(name)
	if err != nil {
		return nil, notFound(name, err)
	}

	return summary, nil
}
