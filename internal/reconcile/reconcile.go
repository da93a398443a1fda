// Package reconcile 对照目标表格求已落盘的提交集合
package reconcile

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/AAK-MBU/MBU-Formulardata-ATS/internal/sharepoint"
)

// SheetName 目标工作簿中的答卷页签
const SheetName = "Besvarelser"

// SerialColumn 序列号列的表头
const SerialColumn = "Serial number"

// FileStore 对账所需的最小文档库能力
type FileStore interface {
	FetchFiles(ctx context.Context, folder string) ([]sharepoint.FileInfo, error)
	ReadBinary(ctx context.Context, fileName, folder string) ([]byte, error)
}

// State 对账结果
//
// 每轮对账重新计算，不持久化。表格不存在时 Exists 为 false 且集合为空。
type State struct {
	Exists       bool
	KnownSerials map[string]struct{}
}

// Known 判断序列号是否已落盘
func (s State) Known(serial string) bool {
	_, ok := s.KnownSerials[serial]
	return ok
}

// Reconcile 读取目标表格，求已应用的序列号集合
//
// 需要整表读取，成本 O(现有行数)；对账每个填充周期只跑一次，可以接受。
// 现有表格中的重复序列号收敛为一个集合成员，不视为错误。
func Reconcile(ctx context.Context, store FileStore, folder, fileName string) (State, error) {
	state := State{KnownSerials: map[string]struct{}{}}

	files, err := store.FetchFiles(ctx, folder)
	if err != nil {
		return state, fmt.Errorf("failed to list folder %q: %w", folder, err)
	}

	found := false
	for _, f := range files {
		if f.Name == fileName {
			found = true
			break
		}
	}
	if !found {
		return state, nil
	}

	content, err := store.ReadBinary(ctx, fileName, folder)
	if err != nil {
		return state, fmt.Errorf("failed to fetch sheet %q: %w", fileName, err)
	}

	serials, err := ReadSerialColumn(content)
	if err != nil {
		return state, err
	}

	state.Exists = true
	state.KnownSerials = serials
	return state, nil
}

// ReadSerialColumn 从工作簿字节中提取序列号列的值集合
//
// 值统一按字符串比较（excelize 读出的单元格本就是字符串形式）。
func ReadSerialColumn(content []byte) (map[string]struct{}, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(SheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", SheetName, err)
	}

	serials := map[string]struct{}{}
	if len(rows) == 0 {
		return serials, nil
	}

	serialIdx := -1
	for i, header := range rows[0] {
		if strings.TrimSpace(header) == SerialColumn {
			serialIdx = i
			break
		}
	}
	if serialIdx < 0 {
		return nil, fmt.Errorf("sheet %q has no %q column", SheetName, SerialColumn)
	}

	for _, row := range rows[1:] {
		if serialIdx >= len(row) {
			continue
		}
		value := strings.TrimSpace(row[serialIdx])
		if value != "" {
			serials[value] = struct{}{}
		}
	}

	return serials, nil
}
