package logger

import (
	"log"
	"os"
)

var debugEnabled bool

// Init configures logging flags (called once from main). Debug output is
// gated on LOG_DEBUG so production logs stay readable during large sends.
func Init() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	debugEnabled = os.Getenv("LOG_DEBUG") == "true"
}

func Infof(format string, v ...any) {
	log.Printf("[INFO] "+format, v...)
}

func Warnf(format string, v ...any) {
	log.Printf("[WARN] "+format, v...)
}

func Errorf(format string, v ...any) {
	log.Printf("[ERROR] "+format, v...)
}

func Debugf(format string, v ...any) {
	if !debugEnabled {
		return
	}
	log.Printf("[DEBUG] "+format, v...)
}

func Fatalf(format string, v ...any) {
	log.Fatalf("[FATAL] "+format, v...)
}
