package client

// Watch asks the daemon to watch (or return the already-running watch for)
// the directory at path.
func (c *Client) Watch(path string) (map[string]interface{}, error) {
	return c.Call("watch", path)
}

// WatchProject walks upward from path for a root_files marker and watches
// the directory it finds, returning the resolved root plus relative_path.
func (c *Client) WatchProject(path string) (map[string]interface{}, error) {
	return c.Call("watch-project", path)
}

// WatchDel stops watching path.
func (c *Client) WatchDel(path string) (map[string]interface{}, error) {
	return c.Call("watch-del", path)
}

// WatchDelAll stops watching every root.
func (c *Client) WatchDelAll() (map[string]interface{}, error) {
	return c.Call("watch-del-all")
}

// WatchList lists every currently watched root.
func (c *Client) WatchList() (map[string]interface{}, error) {
	return c.Call("watch-list")
}

// Clock returns root's current clockspec, optionally blocking up to
// syncTimeoutMs for a sync-to-now cookie round trip, so the returned clock
// reflects every change the watcher pipeline has observed so far.
func (c *Client) Clock(root string, syncTimeoutMs int) (map[string]interface{}, error) {
	if syncTimeoutMs > 0 {
		return c.Call("clock", root, map[string]interface{}{"sync_timeout": syncTimeoutMs})
	}
	return c.Call("clock", root)
}

// Find runs a legacy glob-pattern search against root.
func (c *Client) Find(root string, patterns ...string) (map[string]interface{}, error) {
	args := make([]interface{}, 0, len(patterns)+1)
	args = append(args, root)
	for _, p := range patterns {
		args = append(args, p)
	}
	return c.Call("find", args...)
}

// Since runs a legacy glob-pattern search against root restricted to
// changes after clockspec.
func (c *Client) Since(root, clockspec string, patterns ...string) (map[string]interface{}, error) {
	args := make([]interface{}, 0, len(patterns)+2)
	args = append(args, root, clockspec)
	for _, p := range patterns {
		args = append(args, p)
	}
	return c.Call("since", args...)
}

// Query runs a modern query object against root.
func (c *Client) Query(root string, query map[string]interface{}) (map[string]interface{}, error) {
	return c.Call("query", root, query)
}

// Subscribe registers a live subscription on root under name; further
// matching changes arrive as unsolicited PDUs readable via ReadPush.
func (c *Client) Subscribe(root, name string, query map[string]interface{}) (map[string]interface{}, error) {
	return c.Call("subscribe", root, name, query)
}

// Unsubscribe cancels a previously registered subscription.
func (c *Client) Unsubscribe(root, name string) (map[string]interface{}, error) {
	return c.Call("unsubscribe", root, name)
}

// Trigger registers (or replaces) a trigger definition on root.
func (c *Client) Trigger(root string, def map[string]interface{}) (map[string]interface{}, error) {
	return c.Call("trigger", root, def)
}

// TriggerDel removes a trigger by name.
func (c *Client) TriggerDel(root, name string) (map[string]interface{}, error) {
	return c.Call("trigger-del", root, name)
}

// TriggerList lists every trigger registered on root.
func (c *Client) TriggerList(root string) (map[string]interface{}, error) {
	return c.Call("trigger-list", root)
}

// StateEnter/StateLeave bracket a named application-defined state change,
// used by trigger/subscription consumers to avoid acting on a file
// mid-write. syncTimeoutMs, if positive, makes the daemon perform a
// sync-to-now cookie round trip before bracketing the state change, per
// spec §6's state-enter/state-leave sync_timeout option.
func (c *Client) StateEnter(root, name string, metadata interface{}, syncTimeoutMs int) (map[string]interface{}, error) {
	return c.Call("state-enter", root, stateOpts(name, metadata, syncTimeoutMs))
}

func (c *Client) StateLeave(root, name string, metadata interface{}, syncTimeoutMs int) (map[string]interface{}, error) {
	return c.Call("state-leave", root, stateOpts(name, metadata, syncTimeoutMs))
}

func stateOpts(name string, metadata interface{}, syncTimeoutMs int) map[string]interface{} {
	opts := map[string]interface{}{"name": name}
	if metadata != nil {
		opts["metadata"] = metadata
	}
	if syncTimeoutMs > 0 {
		opts["sync_timeout"] = syncTimeoutMs
	}
	return opts
}

// GetPid returns the daemon's process id.
func (c *Client) GetPid() (map[string]interface{}, error) {
	return c.Call("get-pid")
}

// ShutdownServer asks the daemon to exit gracefully.
func (c *Client) ShutdownServer() (map[string]interface{}, error) {
	return c.Call("shutdown-server")
}
