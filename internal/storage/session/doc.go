// Package session owns one backup directory for one process lifetime.
//
// Layout of a session directory:
//
//	<YYYYMMDD-HHMMSS>-<pid>/
//	  pid                    liveness marker (decimal pid)
//	  activity.log           see package activitylog
//	  doc-<id>/              one per document identity
//	    gen-00000003/        published generations, highest wins
//	    .tmp-gen-00000004/   write in progress, never selected
//
// A generation is written into a temporary directory, every file is
// fsynced, and the directory is published with a single rename. A crash at
// any point therefore leaves either the previous generation or the new one,
// never a mix. Older generations are kept as fallbacks and pruned once a
// newer one is published.
package session
