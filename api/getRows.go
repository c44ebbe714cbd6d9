package api

import (
	"context"
	"net/http"

	"github.com/fulldump/box"
	json2 "github.com/go-json-experiment/json"

	"github.com/fulldump/rowmodel/datasource"
)

// getRows speaks the datasource wire contract: a block request in, the block
// and the row count out.
func getRows(ctx context.Context, w http.ResponseWriter, r *http.Request) error {

	name := box.GetUrlParameter(ctx, "datastoreName")
	d, err := GetServicer(ctx).GetDatastore(name)
	if err != nil {
		return notFound(name, err)
	}

	request := datasource.Request{}
	err = json2.UnmarshalRead(r.Body, &request)
	if err != nil {
		return &HttpError{Status: http.StatusBadRequest, Err: err, Description: "Malformed block request"}
	}

	result, err := d.GetRows(request)
	if err != nil {
		return &HttpError{Status: http.StatusBadRequest, Err: err, Description: "block request cannot be answered"}
	}

	return json2.MarshalWrite(w, result)
}
