package config

import (
	"fmt"
	"strings"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// StudentSessionKey returns the cache key holding the JTI of a student's only valid login.
func (r *CacheKeyStruct) StudentSessionKey(studentID string) string {
	return fmt.Sprintf("login:%s", studentID)
}

// ActiveExamKey returns the cache key for the single active exam.
func (r *CacheKeyStruct) ActiveExamKey() string {
	return "exam:active"
}

// ExamStatusesKey returns the hash key holding the latest status per student for a token.
func (r *CacheKeyStruct) ExamStatusesKey(token string) string {
	return fmt.Sprintf("exam:%s:statuses", normalizeToken(token))
}

// ExamMonitorChannel returns the Redis PubSub channel name for an exam monitor
func (r *CacheKeyStruct) ExamMonitorChannel(token string) string {
	return fmt.Sprintf("exam:%s:monitor", normalizeToken(token))
}

func normalizeToken(token string) string {
	return strings.ToUpper(strings.TrimSpace(token))
}

var CacheKey = NewCacheKeyStruct()
