package hostfs

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/studio1767/ctrmgr/internal/platform"
)

// TitleCount reports no titles for the game card; there is no card slot.
func (c *Console) TitleCount(media platform.MediaType) (uint32, error) {
	if media == platform.MediaGameCard {
		return 0, nil
	}
	bucket, err := titleBucket(media)
	if err != nil {
		return 0, err
	}
	var n uint32
	err = each(c, bucket, func(titleRecord) { n++ })
	return n, err
}

func (c *Console) TitleList(media platform.MediaType, count uint32) ([]uint64, error) {
	if media == platform.MediaGameCard {
		return nil, nil
	}
	bucket, err := titleBucket(media)
	if err != nil {
		return nil, err
	}
	var ids []uint64
	err = each(c, bucket, func(r titleRecord) {
		if uint32(len(ids)) < count {
			ids = append(ids, r.ID)
		}
	})
	return ids, err
}

func (c *Console) TitleInfo(media platform.MediaType, id uint64) (platform.TitleInfo, error) {
	rec, err := c.title(media, id)
	if err != nil {
		return platform.TitleInfo{}, err
	}

	info := platform.TitleInfo{
		ID:          rec.ID,
		Media:       rec.Media,
		Version:     rec.Version,
		ProductCode: rec.ProductCode,
		Meta:        rec.Meta,
	}
	if st, err := os.Stat(c.hostPath(rec.File)); err == nil {
		info.Size = uint64(st.Size())
	}
	return info, nil
}

func (c *Console) title(media platform.MediaType, id uint64) (*titleRecord, error) {
	bucket, err := titleBucket(media)
	if err != nil {
		return nil, err
	}
	var rec titleRecord
	found, err := c.get(bucket, idKey(id), &rec)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("title %016X on %s: %w", id, media, platform.ResultTitleNotFound)
	}
	return &rec, nil
}

func (c *Console) PendingTitles(media platform.MediaType) ([]platform.PendingTitle, error) {
	bucket, err := pendingBucket(media)
	if err != nil {
		return nil, err
	}
	var out []platform.PendingTitle
	err = each(c, bucket, func(r pendingRecord) {
		out = append(out, platform.PendingTitle{ID: r.ID, Media: r.Media, Version: r.Version})
	})
	return out, err
}

func (c *Console) Tickets() ([]uint64, error) {
	var ids []uint64
	err := each(c, bucketTickets, func(r ticketRecord) {
		ids = append(ids, r.ID)
	})
	return ids, err
}

func (c *Console) ExtSaveData(media platform.MediaType) ([]platform.SaveData, error) {
	var out []platform.SaveData
	err := each(c, bucketExtSave, func(r saveRecord) {
		if r.Media == media {
			out = append(out, platform.SaveData{ID: r.ID, Media: r.Media, Meta: r.Meta})
		}
	})
	return out, err
}

func (c *Console) SystemSaveData() ([]platform.SaveData, error) {
	var out []platform.SaveData
	err := each(c, bucketSysSave, func(r saveRecord) {
		out = append(out, platform.SaveData{ID: r.ID, Media: platform.MediaNAND})
	})
	return out, err
}

// CreateExtSaveData registers ext save data and creates its archive.
func (c *Console) CreateExtSaveData(media platform.MediaType, id uint64, meta *platform.Metadata) error {
	if err := os.MkdirAll(c.hostPath("extsave", idKey(id)), 0755); err != nil {
		return err
	}
	return c.set(bucketExtSave, idKey(id), saveRecord{ID: id, Media: media, Meta: meta})
}

// CreateSystemSaveData registers system save data and creates its archive.
func (c *Console) CreateSystemSaveData(id uint64) error {
	if err := os.MkdirAll(c.hostPath("syssave", idKey(id)), 0755); err != nil {
		return err
	}
	return c.set(bucketSysSave, idKey(id), saveRecord{ID: id, Media: platform.MediaNAND})
}

func (c *Console) DeleteTitle(media platform.MediaType, id uint64) error {
	rec, err := c.title(media, id)
	if err != nil {
		return err
	}
	bucket, _ := titleBucket(media)
	if _, err := c.delete(bucket, idKey(id)); err != nil {
		return err
	}
	c.log.Debug().Str("title", fmt.Sprintf("%016X", id)).Str("media", media.String()).Msg("title deleted")
	return removeIfExists(c.hostPath(rec.File))
}

func (c *Console) DeletePendingTitle(media platform.MediaType, id uint64) error {
	bucket, err := pendingBucket(media)
	if err != nil {
		return err
	}
	var rec pendingRecord
	found, err := c.get(bucket, idKey(id), &rec)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("pending title %016X on %s: %w", id, media, platform.ResultTitleNotFound)
	}
	if _, err := c.delete(bucket, idKey(id)); err != nil {
		return err
	}
	return removeIfExists(c.hostPath(rec.File))
}

func (c *Console) DeleteTicket(id uint64) error {
	var rec ticketRecord
	found, err := c.get(bucketTickets, idKey(id), &rec)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("ticket %016X: %w", id, platform.ResultNotFound)
	}
	if _, err := c.delete(bucketTickets, idKey(id)); err != nil {
		return err
	}
	if rec.File != "" {
		return removeIfExists(c.hostPath(rec.File))
	}
	return nil
}

func (c *Console) DeleteExtSaveData(media platform.MediaType, id uint64) error {
	var rec saveRecord
	found, err := c.get(bucketExtSave, idKey(id), &rec)
	if err != nil {
		return err
	}
	if !found || rec.Media != media {
		return fmt.Errorf("ext save data %016X on %s: %w", id, media, platform.ResultNotFound)
	}
	if _, err := c.delete(bucketExtSave, idKey(id)); err != nil {
		return err
	}
	return os.RemoveAll(c.hostPath("extsave", idKey(id)))
}

func (c *Console) DeleteSystemSaveData(id uint64) error {
	found, err := c.delete(bucketSysSave, idKey(id))
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("system save data %016X: %w", id, platform.ResultNotFound)
	}
	return os.RemoveAll(c.hostPath("syssave", idKey(id)))
}

// InstallFirmware records id as the running firmware. It must be installed
// on NAND first.
func (c *Console) InstallFirmware(id uint64) error {
	if _, err := c.title(platform.MediaNAND, id); err != nil {
		return err
	}
	c.log.Info().Str("title", fmt.Sprintf("%016X", id)).Msg("firmware installed")
	return c.set(bucketSystem, "firmware", firmwareRecord{ID: id})
}

// Firmware returns the id recorded by the last InstallFirmware.
func (c *Console) Firmware() (uint64, bool, error) {
	var rec firmwareRecord
	found, err := c.get(bucketSystem, "firmware", &rec)
	return rec.ID, found, err
}

func (c *Console) IsNewConsole() (bool, error) {
	return c.opts.New, nil
}

func removeIfExists(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func relPath(parts ...string) string {
	return filepath.Join(parts...)
}
