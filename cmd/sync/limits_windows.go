package sync

func setOpenFilesLimit() error {
	return nil
}
