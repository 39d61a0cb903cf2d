package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hearthchat/server/model"
	"github.com/hearthchat/server/social"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func friendCount(t *testing.T, ts *TestServer, token string) int {
	t.Helper()
	resp := ts.Get(t, "/api/users/friends", token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out struct {
		Friends []json.RawMessage `json:"friends"`
	}
	ReadJSON(t, resp, &out)
	return len(out.Friends)
}

func TestFriendsLifecycle(t *testing.T) {
	ts := NewTestServer(t)
	aID, _, tokenA := ts.NewUser(t, "alice")
	bID, _, tokenB := ts.NewUser(t, "bob")

	sseB := ts.ConnectSSE(t, tokenB)
	sseA := ts.ConnectSSE(t, tokenA)

	// Request → B is notified.
	require.Equal(t, http.StatusCreated, ts.Status(t, http.MethodPost, fmt.Sprintf("/api/users/friends/requests/add/%d", bID), tokenA))
	ev := sseB.Next(5 * time.Second)
	assert.Equal(t, social.EventFriendRequest, ev.Name)
	assert.Contains(t, ev.Data, fmt.Sprintf(`"from":%d`, aID))

	// Accept → A is notified, both are friends.
	require.Equal(t, http.StatusOK, ts.Status(t, http.MethodPut, fmt.Sprintf("/api/users/friends/requests/accept/%d", aID), tokenB))
	ev = sseA.Next(5 * time.Second)
	assert.Equal(t, social.EventFriendAccepted, ev.Name)
	assert.Equal(t, 1, friendCount(t, ts, tokenA))
	assert.Equal(t, 1, friendCount(t, ts, tokenB))

	// Remove → B is notified, nobody is a friend.
	require.Equal(t, http.StatusOK, ts.Status(t, http.MethodDelete, fmt.Sprintf("/api/users/friends/%d", bID), tokenA))
	ev = sseB.Next(5 * time.Second)
	assert.Equal(t, social.EventFriendRemoved, ev.Name)
	assert.Zero(t, friendCount(t, ts, tokenA))
	assert.Zero(t, friendCount(t, ts, tokenB))

	// Block, then only the blocker may lift it.
	require.Equal(t, http.StatusOK, ts.Status(t, http.MethodPut, fmt.Sprintf("/api/users/friends/block/%d", aID), tokenB))
	assert.Equal(t, http.StatusConflict, ts.Status(t, http.MethodPost, fmt.Sprintf("/api/users/friends/requests/add/%d", bID), tokenA))
	assert.Equal(t, http.StatusForbidden, ts.Status(t, http.MethodDelete, fmt.Sprintf("/api/users/friends/%d", bID), tokenA))
	require.Equal(t, http.StatusOK, ts.Status(t, http.MethodDelete, fmt.Sprintf("/api/users/friends/%d", aID), tokenB))
	assert.Equal(t, http.StatusCreated, ts.Status(t, http.MethodPost, fmt.Sprintf("/api/users/friends/requests/add/%d", bID), tokenA))
}

func TestConcurrentCrossRequests(t *testing.T) {
	ts := NewTestServer(t)
	aID, _, tokenA := ts.NewUser(t, "alice")
	bID, _, tokenB := ts.NewUser(t, "bob")

	var wg sync.WaitGroup
	codes := make(chan int, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		codes <- ts.Status(t, http.MethodPost, fmt.Sprintf("/api/users/friends/requests/add/%d", bID), tokenA)
	}()
	go func() {
		defer wg.Done()
		codes <- ts.Status(t, http.MethodPost, fmt.Sprintf("/api/users/friends/requests/add/%d", aID), tokenB)
	}()
	wg.Wait()
	close(codes)

	var got []int
	for c := range codes {
		got = append(got, c)
	}
	assert.ElementsMatch(t, []int{http.StatusCreated, http.StatusConflict}, got)

	var count int64
	require.NoError(t, ts.DB.Model(&model.Relationship{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestAdminMetricsAndAnnounce(t *testing.T) {
	ts := NewTestServer(t)
	_, _, token := ts.NewUser(t, "carol")
	events := ts.ConnectSSE(t, token)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/admin/metrics", nil)
	require.NoError(t, err)
	req.Header.Set("X-Admin-Key", testAdminKey)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var metrics struct {
		Accounts int64 `json:"accounts"`
	}
	ReadJSON(t, resp, &metrics)
	assert.Equal(t, int64(1), metrics.Accounts)

	body := `{"message":"server restart at noon"}`
	req, err = http.NewRequest(http.MethodPost, ts.URL+"/api/admin/announce", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Admin-Key", testAdminKey)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	ev := events.Next(5 * time.Second)
	assert.Equal(t, "announce", ev.Name)
	assert.Contains(t, ev.Data, "server restart at noon")
}

func TestAuditTrailFlushedOnStop(t *testing.T) {
	ts := NewTestServer(t)
	aID, _, tokenA := ts.NewUser(t, "alice")
	bID, _, _ := ts.NewUser(t, "bob")

	require.Equal(t, http.StatusOK, ts.Status(t, http.MethodPut, fmt.Sprintf("/api/users/friends/block/%d", bID), tokenA))
	ts.Audit.Stop(context.Background())

	var logs []model.AuditLog
	require.NoError(t, ts.DB.Where("account_id = ?", aID).Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, "friend.block", logs[0].Action)
}
