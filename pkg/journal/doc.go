/*
Package journal implements the Journal (C4): the append-only on-disk
archive of every MasterAction, its stage results, and correlated
master/slave logs, per the layout §4.4 fixes exactly:

	<journalRoot>/<environmentName>/ActionJournal/<timestamp>-<masterActionId>/
	    master_action_info.json
	    stages/
	        <index>-<stageName>/
	            stage_result.json
	            logs/
	                _master.log
	                <nodeName>.log

The plain files on disk are the authoritative record; a go.etcd.io/bbolt
index (journal.db, adapted from the teacher's pkg/storage bucket-per-
entity pattern) exists only to avoid a directory walk on every
getArchivedMasterAction/history query. Losing journal.db never loses
data — it can be rebuilt by walking ActionJournal/.

Writes go through writeThenRename: marshal to a temp file beside the
destination, fsync, then os.Rename, which POSIX guarantees is atomic
within the same directory. A reader therefore never observes a
partially-written master_action_info.json or stage_result.json.

A github.com/robfig/cron/v3 schedule runs the retention sweep, mirroring
the teacher's own use of a background ticking goroutine for periodic
maintenance (pkg/reconciler) but on a cron expression instead of a fixed
interval, since retention is a daily/weekly cadence rather than a
liveness check.
*/
package journal
