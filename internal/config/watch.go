package config

import (
	"context"
	"strings"

	"fathom/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// WatchLogLevel 监听配置文件变更并热更新日志级别。
// 只接受 log_level 的变化，其余字段改动需要重启生效。
func WatchLogLevel(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				v := viper.New()
				v.SetConfigFile(path)
				v.SetConfigType("yaml")
				if err := v.ReadInConfig(); err != nil {
					logger.Warnf("配置重载失败: %v", err)
					continue
				}
				level := strings.ToLower(v.GetString("app.log_level"))
				switch level {
				case "debug", "info", "warn", "error":
					logger.SetLevel(level)
					logger.Infof("日志级别已热更新: %s", level)
				case "":
				default:
					logger.Warnf("忽略无效日志级别: %q", level)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warnf("配置监听错误: %v", err)
			}
		}
	}()
	return nil
}
