package domain

// Activity actions recorded in the per-project audit trail.
const (
	ActionProjectCreated         = "project_created"
	ActionProjectUpdated         = "project_updated"
	ActionProjectValidated       = "project_validated"
	ActionProjectInvalidated     = "project_invalidated"
	ActionTaskCreated            = "task_created"
	ActionTaskUpdated            = "task_updated"
	ActionTaskValidated          = "task_validated"
	ActionTaskMarkedNotPertinent = "task_marked_not_pertinent"
	ActionTaskDeleted            = "task_deleted"
	ActionCommentAdded           = "comment_added"
	ActionAttachmentUploaded     = "attachment_uploaded"
	ActionAttachmentReplaced     = "attachment_replaced"
)

var actionLabels = map[string]string{
	ActionProjectCreated:         "Projet créé",
	ActionProjectUpdated:         "Projet modifié",
	ActionProjectValidated:       "Projet validé par le chef",
	ActionProjectInvalidated:     "Validation du projet retirée",
	ActionTaskCreated:            "Tâche créée",
	ActionTaskUpdated:            "Tâche mise à jour",
	ActionTaskValidated:          "Tâche validée",
	ActionTaskMarkedNotPertinent: "Tâche marquée non pertinente",
	ActionTaskDeleted:            "Tâche supprimée",
	ActionCommentAdded:           "Commentaire ajouté",
	ActionAttachmentUploaded:     "Cahier des charges ajouté",
	ActionAttachmentReplaced:     "Cahier des charges remplacé",
}

func ValidAction(action string) bool {
	_, ok := actionLabels[action]
	return ok
}

// ActionLabel returns the display label, or the action itself when unknown.
func ActionLabel(action string) string {
	if l, ok := actionLabels[action]; ok {
		return l
	}
	return action
}
