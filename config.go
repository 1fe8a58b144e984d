package gosp

import (
	"sync"
	"time"
)

// Config holds the tunables of one socket. It is safe for concurrent use;
// changes apply to connections made afterwards.
type Config struct {
	sync.RWMutex
	reconnectInterval time.Duration
	reconnectMax      time.Duration
	connectTimeout    time.Duration
	queueLen          int
	maxRecvSize       int
	surveyTime        time.Duration
	sendTimeout       time.Duration
	recvTimeout       time.Duration
}

func (c *Config) Default() {
	c.Lock()
	defer c.Unlock()

	c.reconnectInterval = time.Millisecond * 100
	c.reconnectMax = 0
	c.connectTimeout = time.Second * 3
	c.queueLen = 1024
	c.maxRecvSize = 1024 * 1024
	c.surveyTime = time.Second
	c.sendTimeout = 0
	c.recvTimeout = 0
}

// ReconnectInterval is the first wait before redialing a dropped connection.
func (c *Config) ReconnectInterval() time.Duration {
	c.RLock()
	defer c.RUnlock()
	return c.reconnectInterval
}

func (c *Config) SetReconnectInterval(d time.Duration) {
	c.Lock()
	defer c.Unlock()
	c.reconnectInterval = d
}

// ReconnectMax caps the exponential reconnect wait. Zero disables growth.
func (c *Config) ReconnectMax() time.Duration {
	c.RLock()
	defer c.RUnlock()
	return c.reconnectMax
}

func (c *Config) SetReconnectMax(d time.Duration) {
	c.Lock()
	defer c.Unlock()
	c.reconnectMax = d
}

// ConnectTimeout bounds both the dial and the header exchange.
func (c *Config) ConnectTimeout() time.Duration {
	c.RLock()
	defer c.RUnlock()
	return c.connectTimeout
}

func (c *Config) SetConnectTimeout(d time.Duration) {
	c.Lock()
	defer c.Unlock()
	c.connectTimeout = d
}

// QueueLen is the depth of the receive queue and of every pipe's send queue.
func (c *Config) QueueLen() int {
	c.RLock()
	defer c.RUnlock()
	return c.queueLen
}

func (c *Config) SetQueueLen(queueLen int) {
	c.Lock()
	defer c.Unlock()
	c.queueLen = queueLen
}

// MaxRecvSize is the largest message accepted from a peer. Zero or negative
// means no limit.
func (c *Config) MaxRecvSize() int {
	c.RLock()
	defer c.RUnlock()
	return c.maxRecvSize
}

func (c *Config) SetMaxRecvSize(size int) {
	c.Lock()
	defer c.Unlock()
	c.maxRecvSize = size
}

// SurveyTime is the deadline of surveys started without an explicit one.
func (c *Config) SurveyTime() time.Duration {
	c.RLock()
	defer c.RUnlock()
	return c.surveyTime
}

func (c *Config) SetSurveyTime(d time.Duration) {
	c.Lock()
	defer c.Unlock()
	c.surveyTime = d
}

// SendTimeout bounds blocking sends. Zero blocks forever.
func (c *Config) SendTimeout() time.Duration {
	c.RLock()
	defer c.RUnlock()
	return c.sendTimeout
}

func (c *Config) SetSendTimeout(d time.Duration) {
	c.Lock()
	defer c.Unlock()
	c.sendTimeout = d
}

// RecvTimeout bounds blocking receives. Zero blocks forever.
func (c *Config) RecvTimeout() time.Duration {
	c.RLock()
	defer c.RUnlock()
	return c.recvTimeout
}

func (c *Config) SetRecvTimeout(d time.Duration) {
	c.Lock()
	defer c.Unlock()
	c.recvTimeout = d
}
