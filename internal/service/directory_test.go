package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/freshlane/realtime-go/internal/errors"
	"github.com/freshlane/realtime-go/internal/model"
)

func TestGetOrCreateReturnsExistingConversation(t *testing.T) {
	api := new(mockRestClient)
	directory := NewDirectory(api, 30*time.Second)

	customerID := int64(7)
	conv := &model.Conversation{ID: 42, CustomerID: &customerID, Status: model.ConversationStatusActive}
	api.On("ActiveConversationByCustomer", mock.Anything, customerID).Return(conv, nil).Once()

	got, err := directory.GetOrCreate(context.Background(), &customerID, "maria")
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.ID)

	// Second call inside the TTL is served from cache, no second lookup.
	got, err = directory.GetOrCreate(context.Background(), &customerID, "maria")
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.ID)

	api.AssertExpectations(t)
}

func TestGetOrCreateCreatesWithWelcomeMessage(t *testing.T) {
	api := new(mockRestClient)
	directory := NewDirectory(api, 30*time.Second)

	customerID := int64(7)
	created := &model.Conversation{ID: 43, CustomerID: &customerID, Status: model.ConversationStatusPending}

	api.On("ActiveConversationByCustomer", mock.Anything, customerID).
		Return(nil, apperrors.NotFound("conversation")).Once()
	api.On("CreateConversation", mock.Anything, model.CreateConversationParams{
		CustomerID:   &customerID,
		CustomerName: "maria",
	}).Return(created, nil).Once()
	api.On("PostMessage", mock.Anything, model.CreateMessageParams{
		ConversationID: 43,
		SenderRole:     model.SenderRoleBot,
		Body:           WelcomeMessage,
	}).Return(&model.Message{ID: 1, ConversationID: 43}, nil).Once()

	got, err := directory.GetOrCreate(context.Background(), &customerID, "maria")
	require.NoError(t, err)
	assert.Equal(t, int64(43), got.ID)

	// The freshly created conversation is cached; no re-lookup, no re-create.
	got, err = directory.GetOrCreate(context.Background(), &customerID, "maria")
	require.NoError(t, err)
	assert.Equal(t, int64(43), got.ID)

	api.AssertExpectations(t)
}

func TestGetOrCreateAnonymousAlwaysCreates(t *testing.T) {
	api := new(mockRestClient)
	directory := NewDirectory(api, 30*time.Second)

	created := &model.Conversation{ID: 44, CustomerName: "guest"}
	api.On("CreateConversation", mock.Anything, mock.Anything).Return(created, nil).Twice()
	api.On("PostMessage", mock.Anything, mock.Anything).Return(&model.Message{ID: 1}, nil).Twice()

	for i := 0; i < 2; i++ {
		got, err := directory.GetOrCreate(context.Background(), nil, "guest")
		require.NoError(t, err)
		assert.Equal(t, int64(44), got.ID)
	}
	api.AssertExpectations(t)
}

func TestGetOrCreateConcurrentCallsCreateOnce(t *testing.T) {
	api := new(mockRestClient)
	directory := NewDirectory(api, 30*time.Second)

	customerID := int64(7)
	created := &model.Conversation{ID: 45, CustomerID: &customerID}

	api.On("ActiveConversationByCustomer", mock.Anything, customerID).
		Run(func(mock.Arguments) { time.Sleep(20 * time.Millisecond) }).
		Return(nil, apperrors.NotFound("conversation")).Once()
	api.On("CreateConversation", mock.Anything, mock.Anything).Return(created, nil).Once()
	api.On("PostMessage", mock.Anything, mock.Anything).Return(&model.Message{ID: 1}, nil).Once()

	var wg sync.WaitGroup
	results := make([]int64, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conv, err := directory.GetOrCreate(context.Background(), &customerID, "maria")
			if assert.NoError(t, err) {
				results[i] = conv.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range results {
		assert.Equal(t, int64(45), id)
	}
	api.AssertExpectations(t)
}

func TestGetOrCreateWelcomeFailureIsNotFatal(t *testing.T) {
	api := new(mockRestClient)
	directory := NewDirectory(api, 30*time.Second)

	customerID := int64(7)
	created := &model.Conversation{ID: 46, CustomerID: &customerID}

	api.On("ActiveConversationByCustomer", mock.Anything, customerID).
		Return(nil, apperrors.NotFound("conversation")).Once()
	api.On("CreateConversation", mock.Anything, mock.Anything).Return(created, nil).Once()
	api.On("PostMessage", mock.Anything, mock.Anything).Return(nil, assert.AnError).Once()

	got, err := directory.GetOrCreate(context.Background(), &customerID, "maria")
	require.NoError(t, err)
	assert.Equal(t, int64(46), got.ID)
}

func TestGetOrCreateRequiresDisplayName(t *testing.T) {
	directory := NewDirectory(new(mockRestClient), 30*time.Second)
	_, err := directory.GetOrCreate(context.Background(), nil, "")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeMissingRequired, apperrors.GetCode(err))
}

func TestGetOrCreatePropagatesLookupErrors(t *testing.T) {
	api := new(mockRestClient)
	directory := NewDirectory(api, 30*time.Second)

	customerID := int64(7)
	api.On("ActiveConversationByCustomer", mock.Anything, customerID).
		Return(nil, apperrors.External("storefront api", assert.AnError)).Once()

	_, err := directory.GetOrCreate(context.Background(), &customerID, "maria")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeExternal, apperrors.GetCode(err))
}
