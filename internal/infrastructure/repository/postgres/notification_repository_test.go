package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/grantsignal/grantsignal/internal/core/domain"
)

func newNotificationRepoWithMock(t *testing.T) (*NotificationRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &NotificationRepository{db: db}, mock, func() { _ = db.Close() }
}

func TestListRecipientsDistinguishesMissingPreferences(t *testing.T) {
	repo, mock, done := newNotificationRepoWithMock(t)
	defer done()

	rows := sqlmock.NewRows([]string{"user_id", "email", "document_processed"}).
		AddRow("user-1", "one@example.org", true).
		AddRow("user-2", "two@example.org", false).
		AddRow("user-3", "three@example.org", nil)
	mock.ExpectQuery("FROM organization_members").
		WithArgs("org-1").
		WillReturnRows(rows)

	recipients, err := repo.ListRecipients(context.Background(), "org-1")
	if err != nil {
		t.Fatalf("ListRecipients() error = %v", err)
	}
	if len(recipients) != 3 {
		t.Fatalf("expected 3 recipients, got %d", len(recipients))
	}
	if !recipients[0].WantsDocumentProcessed() {
		t.Fatalf("opted-in member must want notifications: %+v", recipients[0])
	}
	if recipients[1].WantsDocumentProcessed() {
		t.Fatalf("opted-out member must not want notifications: %+v", recipients[1])
	}
	if recipients[2].Preferences != nil || recipients[2].WantsDocumentProcessed() {
		t.Fatalf("member without a preferences row must receive nothing: %+v", recipients[2])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestInsertLogDefaultsIDAndTimestamp(t *testing.T) {
	repo, mock, done := newNotificationRepoWithMock(t)
	defer done()

	mock.ExpectExec("INSERT INTO notification_logs").
		WithArgs(sqlmock.AnyArg(), "org-1", "user-1", domain.NotificationDocumentProcessed,
			"Document processing finished", true, "", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.InsertLog(context.Background(), domain.NotificationLog{
		OrganizationID: "org-1",
		UserID:         "user-1",
		Type:           domain.NotificationDocumentProcessed,
		Subject:        "Document processing finished",
		Success:        true,
		Metadata:       map[string]string{"document_id": "doc-1"},
	})
	if err != nil {
		t.Fatalf("InsertLog() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListLogsDecodesMetadata(t *testing.T) {
	repo, mock, done := newNotificationRepoWithMock(t)
	defer done()

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "organization_id", "user_id", "type", "subject",
		"success", "error_message", "metadata", "created_at",
	}).AddRow(
		"log-1", "org-1", "user-1", domain.NotificationDocumentProcessed,
		"Document processing finished", false, "broker down",
		[]byte(`{"document_id":"doc-1","status":"completed"}`), now,
	)
	mock.ExpectQuery("FROM notification_logs").
		WithArgs("org-1", 25).
		WillReturnRows(rows)

	logs, err := repo.ListLogs(context.Background(), "org-1", 25)
	if err != nil {
		t.Fatalf("ListLogs() error = %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("expected one log, got %d", len(logs))
	}
	if logs[0].Success || logs[0].Error != "broker down" {
		t.Fatalf("unexpected log entry: %+v", logs[0])
	}
	if logs[0].Metadata["document_id"] != "doc-1" {
		t.Fatalf("metadata not decoded: %+v", logs[0].Metadata)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListLogsDefaultsLimit(t *testing.T) {
	repo, mock, done := newNotificationRepoWithMock(t)
	defer done()

	rows := sqlmock.NewRows([]string{
		"id", "organization_id", "user_id", "type", "subject",
		"success", "error_message", "metadata", "created_at",
	})
	mock.ExpectQuery("FROM notification_logs").
		WithArgs("org-1", 50).
		WillReturnRows(rows)

	if _, err := repo.ListLogs(context.Background(), "org-1", 0); err != nil {
		t.Fatalf("ListLogs() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
