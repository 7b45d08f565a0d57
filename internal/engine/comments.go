package engine

import (
	"context"
	"database/sql"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"signoff/internal/domain"
	"signoff/internal/engine/auth"
	"signoff/internal/events"
	"signoff/internal/repo"
)

// MaxAttachmentSize bounds uploaded project specifications.
const MaxAttachmentSize = 10 << 20

func (e Engine) AddComment(ctx context.Context, taskID, actorID, content, typ string) (domain.Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return domain.Comment{}, invalidf("content is required")
	}
	if typ == "" {
		typ = domain.CommentInformative
	}
	if !domain.ValidCommentType(typ) {
		return domain.Comment{}, invalidf("unknown comment type %q", typ)
	}
	var out domain.Comment
	err := e.inTx(ctx, func(tx *sql.Tx, r repo.Repo) ([]events.Change, error) {
		t, err := r.GetTask(ctx, taskID)
		if err != nil {
			return nil, err
		}
		emp, err := actor(ctx, r, actorID, auth.TaskEdit, nil)
		if err != nil {
			return nil, err
		}
		out = domain.Comment{
			ID:        uuid.NewString(),
			TaskID:    t.ID,
			UserID:    emp.ID,
			Content:   content,
			Type:      typ,
			CreatedAt: e.stamp(),
		}
		if err := r.InsertComment(ctx, out); err != nil {
			return nil, err
		}
		if _, err := e.activityLog().Append(ctx, tx, t.ProjectID, emp.ID, emp.Name, domain.ActionCommentAdded, quoted("Sur", t.Title)); err != nil {
			return nil, err
		}
		return nil, nil
	})
	if err != nil {
		return domain.Comment{}, err
	}
	return out, nil
}

// DeleteComment is allowed to the author and to supervisors.
func (e Engine) DeleteComment(ctx context.Context, commentID, actorID string) error {
	return e.inTx(ctx, func(tx *sql.Tx, r repo.Repo) ([]events.Change, error) {
		c, err := r.GetComment(ctx, commentID)
		if err != nil {
			return nil, err
		}
		emp, err := actor(ctx, r, actorID, "", nil)
		if err != nil {
			return nil, err
		}
		if c.UserID != emp.ID && !auth.Can(emp, auth.EmployeeManage, nil) {
			return nil, auth.ForbiddenError{Permission: auth.TaskDelete, ActorID: emp.ID}
		}
		return nil, r.DeleteComment(ctx, commentID)
	})
}

func (e Engine) ListComments(ctx context.Context, taskID string) ([]domain.Comment, error) {
	if _, err := e.Repo.GetTask(ctx, taskID); err != nil {
		return nil, err
	}
	return e.Repo.ListComments(ctx, taskID)
}

// UploadAttachment stores the project specification, replacing any earlier
// one. Content is kept as opaque bytes; the mime type is sniffed when absent.
func (e Engine) UploadAttachment(ctx context.Context, projectID, actorID, fileName, mimeType string, content []byte) (domain.Attachment, error) {
	fileName = strings.TrimSpace(fileName)
	if fileName == "" {
		return domain.Attachment{}, invalidf("file name is required")
	}
	if len(content) == 0 {
		return domain.Attachment{}, invalidf("attachment is empty")
	}
	if len(content) > MaxAttachmentSize {
		return domain.Attachment{}, invalidf("attachment exceeds %d bytes", MaxAttachmentSize)
	}
	if mimeType == "" {
		mimeType = http.DetectContentType(content)
	}
	a := domain.Attachment{
		ProjectID:  projectID,
		FileName:   fileName,
		MimeType:   mimeType,
		Size:       int64(len(content)),
		Content:    content,
		UploadedAt: e.stamp(),
	}
	err := e.inTx(ctx, func(tx *sql.Tx, r repo.Repo) ([]events.Change, error) {
		project, err := r.GetProject(ctx, projectID)
		if err != nil {
			return nil, err
		}
		emp, err := actor(ctx, r, actorID, auth.ProjectEdit, &project)
		if err != nil {
			return nil, err
		}
		replaced, err := r.PutAttachment(ctx, a)
		if err != nil {
			return nil, err
		}
		action := domain.ActionAttachmentUploaded
		if replaced {
			action = domain.ActionAttachmentReplaced
		}
		if _, err := e.activityLog().Append(ctx, tx, projectID, emp.ID, emp.Name, action, fileName); err != nil {
			return nil, err
		}
		return nil, nil
	})
	if err != nil {
		return domain.Attachment{}, err
	}
	return a, nil
}

func (e Engine) GetAttachment(ctx context.Context, projectID string) (domain.Attachment, error) {
	return e.Repo.GetAttachment(ctx, projectID)
}
