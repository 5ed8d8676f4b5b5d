package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// QuizCompletedKey returns the key gating re-entry once a quiz was finalized.
func (r *CacheKeyStruct) QuizCompletedKey(scope string) string {
	return fmt.Sprintf("quiz:%s:completed", scope)
}

// QuizQuestionsKey returns the key holding the fetched question batch.
func (r *CacheKeyStruct) QuizQuestionsKey(scope string) string {
	return fmt.Sprintf("quiz:%s:questions", scope)
}

// QuizAnswersKey returns the key holding the index → option answer map.
func (r *CacheKeyStruct) QuizAnswersKey(scope string) string {
	return fmt.Sprintf("quiz:%s:answers", scope)
}

// QuizVisitedKey returns the key holding the visited index set.
func (r *CacheKeyStruct) QuizVisitedKey(scope string) string {
	return fmt.Sprintf("quiz:%s:visited", scope)
}

// QuizReviewedKey returns the key holding the marked-for-review index set.
func (r *CacheKeyStruct) QuizReviewedKey(scope string) string {
	return fmt.Sprintf("quiz:%s:reviewed", scope)
}

// QuizTimeLeftKey returns the key holding the remaining seconds.
func (r *CacheKeyStruct) QuizTimeLeftKey(scope string) string {
	return fmt.Sprintf("quiz:%s:time_left", scope)
}

// QuizCurrentKey returns the key holding the displayed question index.
func (r *CacheKeyStruct) QuizCurrentKey(scope string) string {
	return fmt.Sprintf("quiz:%s:current", scope)
}

// QuizEventsChannel returns the Redis PubSub channel for a user's quiz stream.
func (r *CacheKeyStruct) QuizEventsChannel(scope string) string {
	return fmt.Sprintf("quiz:%s:events", scope)
}

// ExplanationKey returns the cache key for a generated explanation digest.
func (r *CacheKeyStruct) ExplanationKey(digest string) string {
	return fmt.Sprintf("explain:%s", digest)
}

var CacheKey = NewCacheKeyStruct()
