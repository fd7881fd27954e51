// Package drive navigates the file storage side of the document
// suite: folder trees, moves, and raw exports.
package drive

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/finward/opsflow/internal/common"
	"github.com/finward/opsflow/internal/httpx"
)

// RootFolderID addresses the drive root in parent queries.
const RootFolderID = "root"

const folderMimeType = "application/vnd.google-apps.folder"

// Item is one file or folder.
type Item struct {
	ID       string
	Name     string
	MimeType string
	Folder   bool
}

// Service wraps a client bound to the drive API base URL.
type Service struct {
	client *httpx.Client
	logger *common.Logger
}

// New builds a drive service over the client
func New(client *httpx.Client) *Service {
	return &Service{
		client: client,
		logger: common.GetLogger().WithComponent("drive"),
	}
}

// List returns the direct children of a folder, following page tokens
// until the listing is complete.
func (s *Service) List(ctx context.Context, folderID string) ([]Item, error) {
	var items []Item
	pageToken := ""
	for {
		query := map[string]string{
			"q":      fmt.Sprintf("'%s' in parents and trashed = false", folderID),
			"fields": "nextPageToken, files(id, name, mimeType)",
		}
		if pageToken != "" {
			query["pageToken"] = pageToken
		}
		out := s.client.Get(ctx, "files", httpx.WithQuery(query))
		if !out.OK {
			return nil, fmt.Errorf("failed to list folder %s: %w", folderID, out.Failure)
		}
		out.Get("files").ForEach(func(_, f gjson.Result) bool {
			mime := f.Get("mimeType").String()
			items = append(items, Item{
				ID:       f.Get("id").String(),
				Name:     f.Get("name").String(),
				MimeType: mime,
				Folder:   mime == folderMimeType,
			})
			return true
		})
		pageToken = out.Get("nextPageToken").String()
		if pageToken == "" {
			return items, nil
		}
	}
}

// ResolvePath walks a slash-separated path from the root and returns
// the id of the final component.
func (s *Service) ResolvePath(ctx context.Context, path string) (string, error) {
	current := RootFolderID
	for _, part := range strings.Split(strings.Trim(path, "/"), "/") {
		if part == "" {
			continue
		}
		items, err := s.List(ctx, current)
		if err != nil {
			return "", err
		}
		found := ""
		for _, item := range items {
			if item.Name == part {
				found = item.ID
				break
			}
		}
		if found == "" {
			return "", fmt.Errorf("path component %q not found under %s", part, current)
		}
		current = found
	}
	return current, nil
}

// CreateFolder creates a folder under the parent and returns its id
func (s *Service) CreateFolder(ctx context.Context, parentID, name string) (string, error) {
	out := s.client.Post(ctx, "files", httpx.WithBody(map[string]interface{}{
		"name":     name,
		"mimeType": folderMimeType,
		"parents":  []string{parentID},
	}))
	if !out.OK {
		return "", fmt.Errorf("failed to create folder %q: %w", name, out.Failure)
	}
	return out.Get("id").String(), nil
}

// Copy duplicates a file into the parent folder and returns the new id
func (s *Service) Copy(ctx context.Context, fileID, name, parentID string) (string, error) {
	out := s.client.Post(ctx, "files/"+fileID+"/copy", httpx.WithBody(map[string]interface{}{
		"name":    name,
		"parents": []string{parentID},
	}))
	if !out.OK {
		return "", fmt.Errorf("failed to copy file %s: %w", fileID, out.Failure)
	}
	return out.Get("id").String(), nil
}

// Move reparents a file
func (s *Service) Move(ctx context.Context, fileID, fromParent, toParent string) error {
	out := s.client.Put(ctx, "files/"+fileID, httpx.WithQuery(map[string]string{
		"addParents":    toParent,
		"removeParents": fromParent,
	}), httpx.WithBody(map[string]interface{}{}))
	if !out.OK {
		return fmt.Errorf("failed to move file %s: %w", fileID, out.Failure)
	}
	return nil
}

// Trash marks a file as trashed rather than deleting it outright
func (s *Service) Trash(ctx context.Context, fileID string) error {
	out := s.client.Put(ctx, "files/"+fileID, httpx.WithBody(map[string]interface{}{
		"trashed": true,
	}))
	if !out.OK {
		return fmt.Errorf("failed to trash file %s: %w", fileID, out.Failure)
	}
	return nil
}

// Export downloads a file converted to the given MIME type, verbatim
func (s *Service) Export(ctx context.Context, fileID, mimeType string) ([]byte, error) {
	out := s.client.Get(ctx, "files/"+fileID+"/export", httpx.WithQuery(map[string]string{
		"mimeType": mimeType,
	}), httpx.Raw())
	if !out.OK {
		return nil, fmt.Errorf("failed to export file %s: %w", fileID, out.Failure)
	}
	return out.Raw, nil
}
