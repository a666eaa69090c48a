/*
The sync package implements replisync's one-way mirroring algorithm. A pass
makes a replica directory tree match a source directory tree.

There are two trees:
1) The source tree -- the authoritative files. It's only ever read.
2) The replica tree -- the mirror. Every file and directory in the source is
   created or updated in the replica, and everything in the replica that
   doesn't exist in the source is removed.

A pass walks the source top-down. For each source directory, the replica
directory at the same relative path is reconciled one level deep: it's created
if missing, changed files are copied over, and then extra entries are removed.
Extra directories are removed recursively at the shallowest level they appear,
so the walk never has to descend into the replica.

Whether a file changed is decided either by comparing modification times, or
by comparing sizes and content digests. Copies preserve the modification time,
so a freshly copied file compares equal under both modes.

Type changes are resolved when they're encountered: a replica entry of the
wrong type is removed before a file is copied to its path, or before a
directory is created there.

Symlinks in the source that point at regular files are copied as regular
files. Other symlinks are skipped, and so are removed from the replica like
any other entry without a source counterpart.
*/
package sync
