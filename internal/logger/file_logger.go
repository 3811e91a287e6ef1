package logger

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Logger is a per-session file logger for trading activity.
type Logger struct {
	symbol  string
	logFile *os.File
	logger  *log.Logger
	mu      sync.Mutex
	logDir  string
}

// LogLevel represents different types of log entries
type LogLevel string

const (
	LogLevelInfo     LogLevel = "INFO"
	LogLevelWarning  LogLevel = "WARN"
	LogLevelError    LogLevel = "ERROR"
	LogLevelTrade    LogLevel = "TRADE"
	LogLevelStatus   LogLevel = "STATUS"
	LogLevelDecision LogLevel = "DECISION"
	LogLevelRisk     LogLevel = "RISK"
)

// NewLogger creates a new file logger for the specified symbol.
func NewLogger(symbol string) (*Logger, error) {
	logDir := "logs"
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	timestamp := time.Now().Format("2006-01-02")
	filename := fmt.Sprintf("%s_%s.log", symbol, timestamp)
	logPath := filepath.Join(logDir, filename)

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	l := &Logger{
		symbol:  symbol,
		logFile: file,
		logger:  log.New(file, "", 0),
		logDir:  logDir,
	}
	l.writeSessionHeader()
	return l, nil
}

func (l *Logger) writeSessionHeader() {
	l.mu.Lock()
	defer l.mu.Unlock()

	header := fmt.Sprintf(`
================================================================================
🚀 TRADING SESSION STARTED
================================================================================
Symbol: %s
Started: %s
================================================================================
`, l.symbol, time.Now().Format("2006-01-02 15:04:05"))

	l.logger.Print(header)
}

// Log writes a formatted log entry with the specified level
func (l *Logger) Log(level LogLevel, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	message := fmt.Sprintf(format, args...)
	l.logger.Println(fmt.Sprintf("[%s] [%s] %s", timestamp, level, message))
}

// Info logs an info message
func (l *Logger) Info(format string, args ...interface{}) {
	l.Log(LogLevelInfo, format, args...)
}

// Warning logs a warning message
func (l *Logger) Warning(format string, args ...interface{}) {
	l.Log(LogLevelWarning, format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.Log(LogLevelError, format, args...)
}

// Trade logs an order or fill event
func (l *Logger) Trade(format string, args ...interface{}) {
	l.Log(LogLevelTrade, format, args...)
}

// Status logs market status information
func (l *Logger) Status(format string, args ...interface{}) {
	l.Log(LogLevelStatus, format, args...)
}

// Decision logs AI decision traffic
func (l *Logger) Decision(format string, args ...interface{}) {
	l.Log(LogLevelDecision, format, args...)
}

// Risk logs risk controller enforcement
func (l *Logger) Risk(format string, args ...interface{}) {
	l.Log(LogLevelRisk, format, args...)
}

// LogDecision logs a full decision outcome block.
func (l *Logger) LogDecision(seq uint64, action string, confidence, targetPct float64, regime, rationale string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	block := fmt.Sprintf(`
[%s] [DECISION] ==================== DECISION #%d ====================
🤖 Action: %s | Confidence: %.2f | Target: %.0f%%
🌡️ Regime: %s
💬 %s
=============================================================`,
		timestamp, seq, action, confidence, targetPct*100, regime, rationale)

	l.logger.Println(block)
}

// LogOrderSubmitted logs order placement details.
func (l *Logger) LogOrderSubmitted(orderID string, direction, offset string, volume, price, stopLoss float64, reason string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	block := fmt.Sprintf(`
[%s] [TRADE] ==================== ORDER SUBMITTED ====================
✅ Order ID: %s
📦 %s %s %.0f lots @ %.2f
🛡️ Stop: %.2f
💬 %s
=============================================================`,
		timestamp, orderID, direction, offset, volume, price, stopLoss, reason)

	l.logger.Println(block)
}

// LogTradeClosed logs a completed round trip.
func (l *Logger) LogTradeClosed(entryPrice, exitPrice, volume, realizedPnL float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	block := fmt.Sprintf(`
[%s] [TRADE] ==================== POSITION CLOSED ====================
🎯 Entry: %.2f | Exit: %.2f | Volume: %.0f
💹 Realized PnL: %.2f
=============================================================`,
		timestamp, entryPrice, exitPrice, volume, realizedPnL)

	l.logger.Println(block)
}

// LogPositionSync logs the startup venue resync.
func (l *Logger) LogPositionSync(localQty, venueQty float64) {
	l.Info("Position synced to venue: local %.0f -> venue %.0f", localQty, venueQty)
}

// Close closes the log file
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.logFile != nil {
		timestamp := time.Now().Format("2006-01-02 15:04:05")
		footer := fmt.Sprintf(`
================================================================================
🛑 TRADING SESSION ENDED
================================================================================
Ended: %s
================================================================================

`, timestamp)
		l.logger.Print(footer)
		return l.logFile.Close()
	}
	return nil
}

// GetLogPath returns the current log file path
func (l *Logger) GetLogPath() string {
	timestamp := time.Now().Format("2006-01-02")
	return filepath.Join(l.logDir, fmt.Sprintf("%s_%s.log", l.symbol, timestamp))
}
