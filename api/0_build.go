package api

import (
	"context"

	"github.com/fulldump/box"

	"github.com/fulldump/rowmodel/service"
)

func Build(s service.Servicer, version string) *box.B {

	b := box.NewBox()

	v1 := b.Resource("/v1").
		WithInterceptors(
			box.SetResponseHeader("Content-Type", "application/json"),
			injectServicer(s),
		)

	v1.Resource("/datastores").
		WithActions(
			box.Get(listDatastores),
		)

	v1.Resource("/datastores/{datastoreName}").
		WithActions(
			box.Get(getDatastore),
			box.ActionPost(insert),
			box.ActionPost(getRows),
			box.ActionPost(createIndex),
			box.ActionPost(dropDatastore),
		)

	b.Resource("/release").
		WithActions(box.Get(func() string {
			return version
		}))

	return b
}

func injectServicer(s service.Servicer) box.I {
	return func(next box.H) box.H {
		return func(ctx context.Context) {
			next(SetServicer(ctx, s))
		}
	}
}
