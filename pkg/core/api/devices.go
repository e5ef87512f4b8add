/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package api

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/carverauto/devicelab/pkg/models"
)

const maxUploadBytes = 512 << 20 // 512 MiB app artifacts

// @Summary List devices
// @Tags devices
// @Produce json
// @Success 200 {object} models.APIResponse
// @Router /api/devices [get]
func (s *APIServer) listDevices(w http.ResponseWriter, _ *http.Request) {
	s.writeSuccess(w, s.service.ListDevices())
}

// @Summary Get one device
// @Tags devices
// @Produce json
// @Param id path string true "Device ID"
// @Success 200 {object} models.APIResponse
// @Failure 404 {object} models.APIResponse
// @Router /api/devices/{id} [get]
func (s *APIServer) getDevice(w http.ResponseWriter, r *http.Request) {
	device, err := s.service.GetDevice(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeSuccess(w, device)
}

// @Summary Force a discovery cycle
// @Tags devices
// @Produce json
// @Success 200 {object} models.APIResponse
// @Router /api/devices/refresh [post]
func (s *APIServer) refreshDevices(w http.ResponseWriter, r *http.Request) {
	s.writeSuccess(w, s.service.RefreshDevices(r.Context()))
}

type reserveRequest struct {
	UserID   string `json:"userId"`
	Duration int    `json:"duration,omitempty"`
	Purpose  string `json:"purpose,omitempty"`
}

// @Summary Reserve a device
// @Tags devices
// @Accept json
// @Produce json
// @Param id path string true "Device ID"
// @Success 200 {object} models.APIResponse
// @Failure 400 {object} models.APIResponse
// @Router /api/devices/{id}/reserve [post]
func (s *APIServer) reserveDevice(w http.ResponseWriter, r *http.Request) {
	var req reserveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, fmt.Errorf("%w: %v", errValidation, err))
		return
	}

	if req.UserID == "" {
		s.writeError(w, fmt.Errorf("%w: userId is required", errValidation))
		return
	}

	res, err := s.service.Reserve(r.Context(), mux.Vars(r)["id"], req.UserID, req.Duration, req.Purpose)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeSuccess(w, res)
}

// @Summary Release a device
// @Tags devices
// @Produce json
// @Param id path string true "Device ID"
// @Success 200 {object} models.APIResponse
// @Router /api/devices/{id}/release [post]
func (s *APIServer) releaseDevice(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Release(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.writeError(w, err)
		return
	}

	s.writeMessage(w, "device released")
}

// @Summary Execute a control command
// @Tags devices
// @Accept json
// @Produce json
// @Param id path string true "Device ID"
// @Success 200 {object} models.APIResponse
// @Router /api/devices/{id}/command [post]
func (s *APIServer) executeCommand(w http.ResponseWriter, r *http.Request) {
	var req models.CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, fmt.Errorf("%w: %v", errValidation, err))
		return
	}

	s.respondCommand(w, r, mux.Vars(r)["id"], &req)
}

// typedCommand adapts the shortcut routes onto the generic dispatch: the
// request body is the payload, the kind comes from the path.
func (s *APIServer) typedCommand(kind models.CommandType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, err := io.ReadAll(r.Body)
		if err != nil {
			s.writeError(w, fmt.Errorf("%w: %v", errValidation, err))
			return
		}

		req := models.CommandRequest{Type: kind, Payload: payload}
		s.respondCommand(w, r, mux.Vars(r)["id"], &req)
	}
}

// respondCommand runs the command and folds its terminal status into the
// envelope: a failed command is a successful HTTP exchange carrying the
// command's error.
func (s *APIServer) respondCommand(w http.ResponseWriter, r *http.Request, deviceID string, req *models.CommandRequest) {
	cmd := s.service.ExecuteCommand(r.Context(), deviceID, req)

	if cmd.Status == models.CommandStatusFailed {
		s.writeEnvelope(w, http.StatusOK, models.APIResponse{Success: false, Data: cmd, Error: cmd.Error})
		return
	}

	s.writeSuccess(w, cmd)
}

// @Summary Capture a screenshot
// @Tags devices
// @Produce png
// @Param id path string true "Device ID"
// @Success 200 {file} binary
// @Router /api/devices/{id}/screenshot [get]
func (s *APIServer) captureScreenshot(w http.ResponseWriter, r *http.Request) {
	data, err := s.service.CaptureScreen(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(data)
}

// @Summary Install an uploaded app artifact
// @Tags devices
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Device ID"
// @Param app formData file true "App artifact (.apk, .ipa, .zip with .app bundle)"
// @Success 200 {object} models.APIResponse
// @Router /api/devices/{id}/install-app [post]
func (s *APIServer) installApp(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, header, err := r.FormFile("app")
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: multipart field 'app' is required", errValidation))
		return
	}
	defer file.Close()

	staging, err := s.stageUpload(file, header.Filename)
	if err != nil {
		s.writeError(w, err)
		return
	}
	defer os.RemoveAll(staging.dir)

	if err := s.service.InstallApp(r.Context(), mux.Vars(r)["id"], staging.appPath); err != nil {
		s.writeError(w, err)
		return
	}

	s.writeMessage(w, "app installed")
}

type stagedUpload struct {
	dir     string
	appPath string
}

// stageUpload writes the artifact into a per-request staging directory,
// unzipping archives so .app bundles install from a directory path.
func (s *APIServer) stageUpload(file io.Reader, filename string) (*stagedUpload, error) {
	dir := filepath.Join(s.uploadDir, uuid.New().String())

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create staging dir: %w", err)
	}

	dest := filepath.Join(dir, filepath.Base(filename))

	out, err := os.Create(dest)
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to stage upload: %w", err)
	}

	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		os.RemoveAll(dir)

		return nil, fmt.Errorf("failed to stage upload: %w", err)
	}

	out.Close()

	if strings.EqualFold(filepath.Ext(filename), ".zip") {
		appPath, err := unzipAppBundle(dest, dir)
		if err != nil {
			os.RemoveAll(dir)
			return nil, err
		}

		return &stagedUpload{dir: dir, appPath: appPath}, nil
	}

	return &stagedUpload{dir: dir, appPath: dest}, nil
}

// unzipAppBundle extracts the archive and returns the first .app bundle
// inside, or the extraction root when none is found.
func unzipAppBundle(archivePath, destDir string) (string, error) {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return "", fmt.Errorf("%w: not a valid zip archive", errValidation)
	}
	defer reader.Close()

	extracted := filepath.Join(destDir, "extracted")
	appPath := ""

	for _, entry := range reader.File {
		target := filepath.Join(extracted, entry.Name)

		// Reject entries escaping the extraction root.
		if !strings.HasPrefix(target, filepath.Clean(extracted)+string(os.PathSeparator)) {
			return "", fmt.Errorf("%w: archive entry escapes extraction root", errValidation)
		}

		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return "", err
			}

			if appPath == "" && strings.HasSuffix(strings.TrimSuffix(entry.Name, "/"), ".app") {
				appPath = target
			}

			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return "", err
		}

		src, err := entry.Open()
		if err != nil {
			return "", err
		}

		dst, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, entry.Mode())
		if err != nil {
			src.Close()
			return "", err
		}

		_, copyErr := io.Copy(dst, src) //nolint:gosec // bounded by MaxBytesReader upstream

		src.Close()
		dst.Close()

		if copyErr != nil {
			return "", copyErr
		}
	}

	if appPath == "" {
		appPath = extracted
	}

	return appPath, nil
}
