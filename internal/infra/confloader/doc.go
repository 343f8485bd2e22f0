// Package confloader loads configuration and watches paths for changes.
//
// Loading uses koanf with the priority Map > Env > File > Default, where
// the map layer carries command-line flags. Watching uses fsnotify and is
// shared by configuration reloads and the backup root monitor.
package confloader
