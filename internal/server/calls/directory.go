// Package calls serves the call-center directory: recorded call uploads kept
// on local disk and member lookups from a JSON file.
package calls

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/common"
	"github.com/dmitrijs2005/sessionkeeper/internal/filex"
	"github.com/dmitrijs2005/sessionkeeper/internal/logging"
)

// Member is one entry of the members file.
type Member struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	Company             string `json:"company"`
	Position            string `json:"position"`
	Phone               string `json:"phone"`
	Email               string `json:"email"`
	LastConsultation    string `json:"lastConsultation"`
	Status              string `json:"status"`
	CallStatus          string `json:"callStatus"`
	LastCallTime        string `json:"lastCallTime"`
	ConsultationContent string `json:"consultationContent"`
}

type UploadResult struct {
	Message  string `json:"message"`
	FileName string `json:"fileName"`
	Path     string `json:"path"`
}

type StatusUpdate struct {
	Status   string `json:"status"`
	Duration string `json:"duration"`
	Tel      string `json:"tel"`
}

type Directory struct {
	uploadDir   string
	membersFile string
	log         logging.Logger
	now         func() time.Time
}

func NewDirectory(uploadDir, membersFile string, log logging.Logger) *Directory {
	return &Directory{
		uploadDir:   uploadDir,
		membersFile: membersFile,
		log:         log.With("module", "calls"),
		now:         time.Now,
	}
}

// SaveUpload writes r to "<unix millis>_<name>.<subtype>" in the upload
// directory, creating the directory if needed.
func (d *Directory) SaveUpload(ctx context.Context, fileName, contentType string, r io.Reader) (*UploadResult, error) {
	dir, err := filex.EnsureDir(d.uploadDir, 0o755)
	if err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}

	name := filepath.Base(fileName)
	if name == "." || name == string(filepath.Separator) {
		name = "upload"
	}
	stored := strconv.FormatInt(d.now().UnixMilli(), 10) + "_" + name
	if ext := subtype(contentType); ext != "" {
		stored += "." + ext
	}
	path := filepath.Join(dir, stored)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create upload file: %w", err)
	}

	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, fmt.Errorf("write upload file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close upload file: %w", err)
	}

	d.log.Info(ctx, "call recording stored", "path", path)

	return &UploadResult{Message: "file uploaded", FileName: name, Path: path}, nil
}

func subtype(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	_, sub, ok := strings.Cut(mediaType, "/")
	if !ok {
		return ""
	}
	return sub
}

// Members reads the members file. It is re-read on every call so edits on
// disk are picked up without a restart.
func (d *Directory) Members(ctx context.Context) ([]Member, error) {
	b, err := os.ReadFile(d.membersFile)
	if err != nil {
		return nil, fmt.Errorf("read members file: %w", err)
	}

	var members []Member
	if err := json.Unmarshal(b, &members); err != nil {
		return nil, fmt.Errorf("parse members file: %w", err)
	}
	return members, nil
}

// FindByPhone returns the first member with the given phone number.
func (d *Directory) FindByPhone(ctx context.Context, tel string) (*Member, error) {
	return d.find(ctx, func(m *Member) bool { return m.Phone == tel })
}

// FindByID returns the member with the given id.
func (d *Directory) FindByID(ctx context.Context, id string) (*Member, error) {
	return d.find(ctx, func(m *Member) bool { return m.ID == id })
}

func (d *Directory) find(ctx context.Context, match func(*Member) bool) (*Member, error) {
	members, err := d.Members(ctx)
	if err != nil {
		return nil, err
	}
	for i := range members {
		if match(&members[i]) {
			return &members[i], nil
		}
	}
	return nil, common.ErrorNotFound
}

// UpdateStatus records a call status report. Reports are only logged.
func (d *Directory) UpdateStatus(ctx context.Context, u StatusUpdate) string {
	d.log.Info(ctx, "call status", "status", u.Status, "tel", u.Tel, "duration", u.Duration)
	return "status updated"
}
