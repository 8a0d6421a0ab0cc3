/*
Copyright 2026 The llm-d Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// The file provides HTTP handlers for downloading retained batch job files.
package files

import (
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/llm-d-incubation/llm-batch-engine/internal/apiserver/common"
	artifactsapi "github.com/llm-d-incubation/llm-batch-engine/internal/artifacts/api"
	"github.com/llm-d-incubation/llm-batch-engine/internal/util/logging"
)

const (
	ArtifactPath = "/v1/artifacts/{name}"
)

type FilesApiHandler struct {
	store artifactsapi.Store
}

// NewFilesApiHandler serves files from store. A nil store answers every request with 404.
func NewFilesApiHandler(store artifactsapi.Store) *FilesApiHandler {
	return &FilesApiHandler{store: store}
}

func (c *FilesApiHandler) GetRoutes() []common.Route {
	return []common.Route{
		{
			Method:      http.MethodGet,
			Pattern:     ArtifactPath,
			HandlerFunc: c.DownloadFile,
		},
	}
}

func (c *FilesApiHandler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.GetRequestLogger(r)
	name := r.PathValue("name")

	if c.store == nil {
		common.WriteError(ctx, w, http.StatusNotFound, common.ErrTypeNotFound, "artifacts_disabled",
			"job artifacts are not retained")
		return
	}
	reader, md, err := c.store.Retrieve(ctx, name)
	switch {
	case errors.Is(err, os.ErrNotExist):
		common.WriteError(ctx, w, http.StatusNotFound, common.ErrTypeNotFound, "not_found", "no artifact "+name)
		return
	case errors.Is(err, os.ErrInvalid):
		common.WriteError(ctx, w, http.StatusBadRequest, common.ErrTypeInvalidRequest, "invalid_name", err.Error())
		return
	case err != nil:
		logger.Error(err, "failed to retrieve artifact", "name", name)
		common.WriteError(ctx, w, http.StatusInternalServerError, common.ErrTypeServer, "", "failed to retrieve artifact")
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", "application/jsonl")
	if md != nil && md.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(md.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, reader); err != nil {
		logger.Error(err, "failed to stream artifact", "name", name)
	}
}
