package fsops

// FakeDeleter implements Deleter for testing.
// Records every call; when Fs is set the removal is also applied to it.
type FakeDeleter struct {
	Calls []string
	Fs    Deleter
}

func (f *FakeDeleter) Remove(path string) error {
	f.Calls = append(f.Calls, "rm:"+path)
	if f.Fs != nil {
		return f.Fs.Remove(path)
	}
	return nil
}
