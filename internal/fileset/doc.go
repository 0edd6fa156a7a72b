// Package fileset converts generated text into files on disk.
//
// Generated responses carry files as blocks introduced by a marker line:
//
//	### FILE: src/main/App.kt
//	```kotlin
//	fun main() {}
//	```
//
// Parse extracts the (path, content) pairs without touching the filesystem.
// Writer materializes them under a root directory.
package fileset
