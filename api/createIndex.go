package api

import (
	"context"
	"net/http"

	"github.com/fulldump/box"

	"github.com/fulldump/rowmodel/datastore"
)

func createIndex(ctx context.Context, w http.ResponseWriter, input *datastore.IndexOptions) (*datastore.IndexOptions, error) {

	name := box.GetUrlParameter(ctx, "datastoreName")
	d, err := GetServicer(ctx).GetDatastore(name)
	if err != nil {
		return nil, notFound(name, err)
	}

	err = d.CreateIndex(input)
	if err != nil {
		return nil, &HttpError{Status: http.StatusConflict, Err: err, Description: "index cannot be created"}
	}

	w.WriteHeader(http.StatusCreated)
	return input, nil
}
