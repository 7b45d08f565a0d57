package repo

import (
	"context"
	"database/sql"

	"signoff/internal/domain"
)

// PutAttachment stores the project's single attachment and reports whether
// an earlier one was replaced.
func (r Repo) PutAttachment(ctx context.Context, a domain.Attachment) (bool, error) {
	var one int
	err := r.q().QueryRowContext(ctx, `SELECT 1 FROM attachments WHERE project_id=?`, a.ProjectID).Scan(&one)
	replaced := err == nil
	if err != nil && err != sql.ErrNoRows {
		return false, err
	}
	_, err = r.q().ExecContext(ctx, `INSERT INTO attachments(project_id,file_name,mime_type,size,content,uploaded_at) VALUES (?,?,?,?,?,?)
ON CONFLICT(project_id) DO UPDATE SET file_name=excluded.file_name, mime_type=excluded.mime_type, size=excluded.size, content=excluded.content, uploaded_at=excluded.uploaded_at`,
		a.ProjectID, a.FileName, a.MimeType, a.Size, a.Content, a.UploadedAt)
	if err != nil {
		return false, err
	}
	return replaced, nil
}

func (r Repo) GetAttachment(ctx context.Context, projectID string) (domain.Attachment, error) {
	var a domain.Attachment
	err := r.q().QueryRowContext(ctx, `SELECT project_id,file_name,mime_type,size,content,uploaded_at FROM attachments WHERE project_id=?`, projectID).
		Scan(&a.ProjectID, &a.FileName, &a.MimeType, &a.Size, &a.Content, &a.UploadedAt)
	if err == sql.ErrNoRows {
		return a, notFound("attachment", projectID)
	}
	return a, err
}
