package main

import (
	"bufio"
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"allocator/internal/database"
	"allocator/internal/handlers"
	"allocator/internal/models"
	"allocator/internal/portfolio"
	"allocator/internal/service"
)

type recordingStore struct {
	mu      sync.Mutex
	deleted []int64
}

func (s *recordingStore) EnsureUserExists(context.Context, string, string) error { return nil }

func (s *recordingStore) LoadWorkspace(context.Context, string) (database.Workspace, error) {
	return database.Workspace{Portfolios: []models.Portfolio{}}, nil
}

func (s *recordingStore) SavePortfolio(context.Context, string, models.Portfolio) error { return nil }

func (s *recordingStore) DeletePortfolio(_ context.Context, _ string, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *recordingStore) SaveWorkspace(context.Context, string, int64, int64) error { return nil }

type noPrices struct{}

func (noPrices) GetPrice(context.Context, string, models.Currency, models.Category) (decimal.Decimal, time.Time, error) {
	return decimal.Zero, time.Time{}, nil
}

func TestShutdownCommitsPendingDeleteWithOpenStream(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store := &recordingStore{}
	persister := service.NewPersister(store, logger)
	workspaces := service.NewWorkspaces(store, persister, logger, portfolio.WithGracePeriod(time.Minute))
	srv := &http.Server{Handler: handlers.NewRouter(handlers.NewHandler(workspaces, noPrices{}, logger), logger)}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go srv.Serve(ln)
	base := "http://" + ln.Addr().String() + "/users/u1"

	resp, err := http.Post(base+"/portfolios", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	req, err := http.NewRequest(http.MethodDelete, base+"/portfolios/2", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	stream, err := http.Get(base + "/pending-delete/stream")
	require.NoError(t, err)
	defer stream.Body.Close()
	line, err := bufio.NewReader(stream.Body).ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(line, "event:countdown"), line)

	start := time.Now()
	shutdown(srv, workspaces, persister, logger, 2*time.Second)
	assert.Less(t, time.Since(start), time.Second, "open stream does not hold up shutdown")

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Equal(t, []int64{2}, store.deleted)
	assert.Zero(t, persister.Failures())
}
