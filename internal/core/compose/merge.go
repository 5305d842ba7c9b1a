package compose

// =============================================================================
// Merge
// =============================================================================

// Merge combines base with override, override winning per key.
// Scalars take the override value when set. Services, networks and volumes
// are merged key by key: an override entry replaces the base entry whole.
// Configs, secrets and includes are replaced wholesale when override sets them.
// Neither input is modified.
func Merge(base, override *Document) *Document {
	if base == nil {
		base = &Document{}
	}
	if override == nil {
		override = &Document{}
	}

	out := &Document{
		Version:  pick(override.Version, base.Version),
		Name:     pick(override.Name, base.Name),
		Services: mergeMapping(base.Services, override.Services),
		Networks: mergeMapping(base.Networks, override.Networks),
		Volumes:  mergeMapping(base.Volumes, override.Volumes),
		Configs:  base.Configs,
		Secrets:  base.Secrets,
		Include:  base.Include,
	}
	if override.Configs != nil {
		out.Configs = override.Configs
	}
	if override.Secrets != nil {
		out.Secrets = override.Secrets
	}
	if override.Include != nil {
		out.Include = override.Include
	}
	return out
}

// MergeAll folds docs left to right, so later documents win.
func MergeAll(docs ...*Document) *Document {
	out := &Document{}
	for _, doc := range docs {
		out = Merge(out, doc)
	}
	return out
}

func pick(override, base string) string {
	if override != "" {
		return override
	}
	return base
}

// mergeMapping keeps base key order, then appends keys only in override.
func mergeMapping[V any](base, override Mapping[V]) Mapping[V] {
	out := base.Clone()
	override.Each(out.Set)
	return out
}
