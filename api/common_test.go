package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alwitt/ballotbox/api"
	"github.com/alwitt/ballotbox/db"
	"github.com/alwitt/ballotbox/election"
	"github.com/alwitt/ballotbox/encryption"
	"github.com/alwitt/ballotbox/models"
	"github.com/alwitt/ballotbox/signing"
	"github.com/alwitt/goutils"
	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"
)

const testToken = "ut-shared-identity-token-0123456789"

type testClock struct {
	lock    sync.Mutex
	current time.Time
}

func (c *testClock) Now() time.Time {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.current
}

func (c *testClock) Set(t time.Time) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.current = t
}

// newTestRouter API router over a real election manager and a fresh DB
func newTestRouter(t *testing.T, clock *testClock) (http.Handler, signing.Signer) {
	gin.SetMode(gin.TestMode)

	testDB := fmt.Sprintf("/tmp/ballotbox_ut_%s.db", ulid.Make().String())
	log.WithField("db", testDB).Debug("Test database")
	client, err := db.NewConnection(db.GetSqliteDialector(testDB), logger.Error)
	require.Nil(t, err)
	require.Nil(t, client.RunSQLInTransaction(context.Background(), db.DefineTables))

	crypto, err := encryption.NewCryptographyEngine(
		context.Background(), encryption.CryptographyEngineParams{},
	)
	require.Nil(t, err)

	signer := signing.NewSigner()

	manager, err := election.NewElectionManager(election.ManagerParams{
		Persistence: client, Crypto: crypto, Signer: signer, Clock: clock,
	})
	require.Nil(t, err)

	return newRouterFor(t, manager), signer
}

func newRouterFor(t *testing.T, manager election.ElectionManager) http.Handler {
	gin.SetMode(gin.TestMode)

	auth, err := api.NewHeaderAuthenticator(api.HeaderAuthenticatorParams{Token: testToken})
	require.Nil(t, err)

	handler, err := api.NewHandler(manager, auth, goutils.HTTPLogLevelDEBUG)
	require.Nil(t, err)
	return handler.Router()
}

var (
	creatorIdentity = &models.Identity{
		Username: "alice", AccountType: models.AccountTypeElectionCreator,
	}
	voterIdentity = &models.Identity{Username: "bob", AccountType: models.AccountTypeVoter}
)

// doRequest serve one request, sending identity headers when caller is set
func doRequest(
	router http.Handler, method, path string, caller *models.Identity, body any,
) *httptest.ResponseRecorder {
	var payload []byte
	switch v := body.(type) {
	case nil:
	case string:
		payload = []byte(v)
	default:
		payload, _ = json.Marshal(v)
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if caller != nil {
		req.Header.Set("Authorization", "Bearer "+testToken)
		req.Header.Set(api.DefaultUsernameHeader, caller.Username)
		req.Header.Set(api.DefaultAccountTypeHeader, string(caller.AccountType))
	}

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func decodeBody[T any](t *testing.T, resp *httptest.ResponseRecorder) T {
	var out T
	require.Nil(t, json.Unmarshal(resp.Body.Bytes(), &out), resp.Body.String())
	return out
}

var colorsQuestions = models.QuestionList{
	{Prompt: "Favorite color", Choices: []string{"Red", "Blue"}},
	{Prompt: "Shapes", Choices: []string{"Square", "Circle", "Trapezoid"}},
}

func signedElection(
	t *testing.T,
	signer signing.Signer,
	creator signing.IdentityKeyPair,
	title string,
	start, end time.Time,
) models.CreateElectionRequest {
	raw, err := json.Marshal(&models.ElectionDefinition{
		Version:     1,
		Title:       title,
		Description: fmt.Sprintf("%s election", title),
		StartDate:   start,
		EndDate:     end,
		Questions:   colorsQuestions,
	})
	require.Nil(t, err)
	signature, err := signer.Sign(creator.PrivateKey, raw)
	require.Nil(t, err)
	return models.CreateElectionRequest{
		MasterBallot:          string(raw),
		CreatorPublicKey:      creator.PublicKey,
		MasterBallotSignature: signature,
	}
}

func signedBallot(
	t *testing.T,
	signer signing.Signer,
	voter signing.IdentityKeyPair,
	title string,
	answers ...string,
) models.CastVoteRequest {
	raw, err := json.Marshal(&models.BallotContent{Version: 1, ElectionTitle: title, Answers: answers})
	require.Nil(t, err)
	signature, err := signer.Sign(voter.PrivateKey, raw)
	require.Nil(t, err)
	return models.CastVoteRequest{
		Ballot: string(raw), VoterPublicKey: voter.PublicKey, BallotSignature: signature,
	}
}

func newIdentity(t *testing.T, signer signing.Signer) signing.IdentityKeyPair {
	identity, err := signer.GenerateIdentity()
	require.Nil(t, err)
	return identity
}
