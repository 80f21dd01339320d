package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// SnapshotKey returns the key holding a user's in-progress test snapshot for one test mode.
func (r *CacheKeyStruct) SnapshotKey(userID, mode string) string {
	return fmt.Sprintf("proctor:user:%s:test:%s:snapshot", userID, mode)
}

// EventQuestionsKey returns the cache key for an event's student-facing question list.
func (r *CacheKeyStruct) EventQuestionsKey(eventID string) string {
	return fmt.Sprintf("event:%s:questions", eventID)
}

// EventAnswerKey returns the cache key for an event's answer key hash.
func (r *CacheKeyStruct) EventAnswerKey(eventID string) string {
	return fmt.Sprintf("event:%s:key", eventID)
}

var CacheKey = NewCacheKeyStruct()
