package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"chatrelay/models"

	"github.com/stretchr/testify/require"
)

func TestSendUsesFacebookPageConnection(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Create(&models.SocialConnection{
		UserID:      1,
		Platform:    models.PLATFORM_FACEBOOK,
		PageID:      "page-42",
		AccessToken: "tok-42",
	}).Error)

	var gotPath, gotToken string
	var gotBody sendMessageReq
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotToken = r.URL.Query().Get("access_token")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	reporter := &recordingReporter{}
	sender := NewMetaSender(db, srv.URL, reporter)

	ok := sender.Send(context.Background(), testConversation(), "hi there")
	require.True(t, ok)
	require.Equal(t, "/page-42/messages", gotPath)
	require.Equal(t, "tok-42", gotToken)
	require.Equal(t, "123", gotBody.Recipient.ID)
	require.Equal(t, "hi there", gotBody.Message.Text)
	require.Equal(t, "RESPONSE", gotBody.MessagingType)
	require.Zero(t, reporter.count())
}

func TestSendUsesInstagramAccountConnection(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Create(&models.SocialConnection{
		UserID:      1,
		Platform:    models.PLATFORM_INSTAGRAM,
		AccountID:   "ig-77",
		AccessToken: "tok-ig",
	}).Error)

	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	conv := testConversation()
	conv.Platform = models.PLATFORM_INSTAGRAM

	sender := NewMetaSender(db, srv.URL, &recordingReporter{})
	require.True(t, sender.Send(context.Background(), conv, "hi"))
	require.Equal(t, "/ig-77/messages", gotPath)
}

func TestSendFailsFastWithoutConnection(t *testing.T) {
	db := openTestDB(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no Graph call expected without a connection")
	}))
	defer srv.Close()

	reporter := &recordingReporter{}
	sender := NewMetaSender(db, srv.URL, reporter)

	require.False(t, sender.Send(context.Background(), testConversation(), "hi"))
	require.Equal(t, 1, reporter.count())

	err, reportCtx := reporter.last()
	require.Error(t, err)
	require.Equal(t, "delivery_failed", reportCtx["event"])
}

func TestSendReportsGraphErrors(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Create(&models.SocialConnection{
		UserID:      1,
		Platform:    models.PLATFORM_FACEBOOK,
		PageID:      "page-42",
		AccessToken: "tok-42",
	}).Error)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"expired token"}}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	reporter := &recordingReporter{}
	sender := NewMetaSender(db, srv.URL, reporter)

	require.False(t, sender.Send(context.Background(), testConversation(), "hi"))
	require.Equal(t, 1, reporter.count())
}
